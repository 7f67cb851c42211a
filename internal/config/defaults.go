package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:          "127.0.0.1:5000",
			DialTimeoutMS:    5000,
			SendTimeoutMS:    120000,
			ReceiveTimeoutMS: 120000,
		},
		Calibration: CalibrationConfig{
			XMin:     -10,
			XMax:     10,
			YMin:     -3.8,
			YMax:     4,
			Passes:   3,
			SettleMS: 100,
		},
		Tracking: TrackingConfig{TickHz: 60},
		Indicator: IndicatorConfig{
			Enable:         true,
			Backend:        "terminal",
			DesktopAppName: "sightline",
			SoundEnable:    true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
