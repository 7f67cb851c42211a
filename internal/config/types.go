// Package config resolves, parses, validates, and defaults sightline configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by sightline.
type Config struct {
	Server      ServerConfig
	Calibration CalibrationConfig
	Tracking    TrackingConfig
	Indicator   IndicatorConfig
	Logging     LoggingConfig
}

// ServerConfig locates the gaze server and bounds each blocking call.
type ServerConfig struct {
	Address          string
	DialTimeoutMS    int
	SendTimeoutMS    int
	ReceiveTimeoutMS int
}

func (s ServerConfig) DialTimeout() time.Duration {
	return time.Duration(s.DialTimeoutMS) * time.Millisecond
}

func (s ServerConfig) SendTimeout() time.Duration {
	return time.Duration(s.SendTimeoutMS) * time.Millisecond
}

func (s ServerConfig) ReceiveTimeout() time.Duration {
	return time.Duration(s.ReceiveTimeoutMS) * time.Millisecond
}

// CalibrationConfig holds the screen extents sent with the calibration
// request and the pause between trigger and capture.
type CalibrationConfig struct {
	XMin     float64
	XMax     float64
	YMin     float64
	YMax     float64
	Passes   int
	SettleMS int
}

func (c CalibrationConfig) Settle() time.Duration {
	return time.Duration(c.SettleMS) * time.Millisecond
}

// TrackingConfig controls the tick cadence.
type TrackingConfig struct {
	TickHz float64
}

// IndicatorConfig controls marker rendering and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
}

// LoggingConfig controls the runtime log level.
type LoggingConfig struct {
	Level string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}
