package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type fileConfig struct {
	Server      *fileServer      `json:"server"`
	Calibration *fileCalibration `json:"calibration"`
	Tracking    *fileTracking    `json:"tracking"`
	Indicator   *fileIndicator   `json:"indicator"`
	Logging     *fileLogging     `json:"logging"`
}

type fileServer struct {
	Address          *string `json:"address"`
	DialTimeoutMS    *int    `json:"dial_timeout_ms"`
	SendTimeoutMS    *int    `json:"send_timeout_ms"`
	ReceiveTimeoutMS *int    `json:"receive_timeout_ms"`
}

type fileCalibration struct {
	XMin     *float64 `json:"x_min"`
	XMax     *float64 `json:"x_max"`
	YMin     *float64 `json:"y_min"`
	YMax     *float64 `json:"y_max"`
	Passes   *int     `json:"passes"`
	SettleMS *int     `json:"settle_ms"`
}

type fileTracking struct {
	TickHz *float64 `json:"tick_hz"`
}

type fileIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
}

type fileLogging struct {
	Level *string `json:"level"`
}

func parseJSON(content string, base Config) (Config, []Warning, error) {
	decoder := json.NewDecoder(strings.NewReader(content))
	decoder.DisallowUnknownFields()

	var payload fileConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(content, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(content, err)
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload fileConfig) applyTo(cfg *Config) {
	if s := payload.Server; s != nil {
		set(&cfg.Server.Address, s.Address)
		set(&cfg.Server.DialTimeoutMS, s.DialTimeoutMS)
		set(&cfg.Server.SendTimeoutMS, s.SendTimeoutMS)
		set(&cfg.Server.ReceiveTimeoutMS, s.ReceiveTimeoutMS)
	}
	if c := payload.Calibration; c != nil {
		set(&cfg.Calibration.XMin, c.XMin)
		set(&cfg.Calibration.XMax, c.XMax)
		set(&cfg.Calibration.YMin, c.YMin)
		set(&cfg.Calibration.YMax, c.YMax)
		set(&cfg.Calibration.Passes, c.Passes)
		set(&cfg.Calibration.SettleMS, c.SettleMS)
	}
	if t := payload.Tracking; t != nil {
		set(&cfg.Tracking.TickHz, t.TickHz)
	}
	if i := payload.Indicator; i != nil {
		set(&cfg.Indicator.Enable, i.Enable)
		set(&cfg.Indicator.Backend, i.Backend)
		set(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		set(&cfg.Indicator.SoundEnable, i.SoundEnable)
	}
	if l := payload.Logging; l != nil {
		set(&cfg.Logging.Level, l.Level)
	}
}

// set overlays an optional file value onto dst.
func set[T any](dst *T, value *T) {
	if value != nil {
		*dst = *value
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
