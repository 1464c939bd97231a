package sms

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
)

// Constructor builds a driver from its settings block.
type Constructor func(cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) dispatch.Driver

var constructors = map[string]Constructor{
	"log": func(cfg config.DriverConfig, _ Caller, logger zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewLogDriver(cfg, logger, opts...)
	},
	"esms": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewESMSDriver(cfg, c, l, opts...)
	},
	"smsnoc": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewSMSNOCDriver(cfg, c, l, opts...)
	},
	"mimsms": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewMiMSMSDriver(cfg, c, l, opts...)
	},
	"ssl": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewSSLDriver(cfg, c, l, opts...)
	},
	"grameenphone": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewGrameenphoneDriver(cfg, c, l, opts...)
	},
	"banglalink": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewBanglalinkDriver(cfg, c, l, opts...)
	},
	"robi": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewRobiDriver(cfg, c, l, opts...)
	},
	"infobip": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewInfobipDriver(cfg, c, l, opts...)
	},
	"adnsms": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewADNSMSDriver(cfg, c, l, opts...)
	},
	"alphasms": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewAlphaSMSDriver(cfg, c, l, opts...)
	},
	"greenweb": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewGreenwebDriver(cfg, c, l, opts...)
	},
	"bulksms": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewBulkSMSDriver(cfg, c, l, opts...)
	},
	"elitbuzz": func(cfg config.DriverConfig, c Caller, l zerolog.Logger, opts ...Option) dispatch.Driver {
		return NewElitbuzzDriver(cfg, c, l, opts...)
	},
}

// New constructs the built-in driver called name.
func New(name string, cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts ...Option) (dispatch.Driver, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, &dispatch.UnknownProviderError{Name: name}
	}
	return ctor(cfg, client, logger, opts...), nil
}

// Names lists the built-in drivers, sorted.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
