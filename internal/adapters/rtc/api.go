package rtc

import (
	"time"

	"github.com/dkeye/Tandem/internal/call"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

type Options struct {
	ICEServers []string
	// GatherTimeout bounds how long a description waits for candidate
	// gathering before it is handed out. Remaining candidates trickle.
	GatherTimeout time.Duration
}

func OptionsFromConfig(cfg *config.PeerConfig) Options {
	return Options{ICEServers: cfg.ICEServers, GatherTimeout: cfg.GatherTimeout}
}

func (o Options) configuration() webrtc.Configuration {
	if len(o.ICEServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: o.ICEServers}},
	}
}

// NewAPI builds a pion API with the default codecs and interceptors and pion
// logging routed into zerolog.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// Factory creates one Connection per call session.
type Factory struct {
	api  *webrtc.API
	opts Options
}

var _ call.NegotiatorFactory = (*Factory)(nil)

func NewFactory(opts Options) (*Factory, error) {
	api, err := NewAPI()
	if err != nil {
		return nil, err
	}
	return &Factory{api: api, opts: opts}, nil
}

func (f *Factory) NewNegotiator(stream call.LocalStream) (call.Negotiator, error) {
	conn, err := newConnection(f.api, f.opts, stream)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
