package main

import (
	"errors"
	"log/slog"

	"github.com/GriffinCanCode/cinescribe/internal/config"
	"github.com/GriffinCanCode/cinescribe/internal/inference"
	"github.com/GriffinCanCode/cinescribe/internal/orchestrator"
)

// newManager dials the model endpoints and builds the session manager.
// The returned func releases the transports.
func newManager(cfg *config.Config, opts ...orchestrator.Option) (*orchestrator.Manager, func(), error) {
	base := inference.Endpoint{
		Transport:   cfg.InferenceTransport,
		Addr:        cfg.InferenceAddr,
		APIKey:      cfg.InferenceAPIKey,
		Timeout:     config.Seconds(cfg.InferenceTimeout),
		Temperature: cfg.Temperature,
		JPEGQuality: cfg.JPEGQuality,
	}

	visionEP := base
	visionEP.Name, visionEP.URL, visionEP.Model = "vision", cfg.InferenceURL, cfg.InferenceModel
	vision, closeVision, err := inference.Dial(visionEP)
	if err != nil {
		return nil, nil, err
	}
	closers := []func() error{closeVision}

	var ocr inference.Client
	if cfg.OCREnabled {
		ocrEP := base
		ocrEP.Name, ocrEP.URL, ocrEP.Model = "ocr", cfg.OCRURL, cfg.OCRModel
		c, closeOCR, err := inference.Dial(ocrEP)
		if err != nil {
			_ = closeVision()
			return nil, nil, err
		}
		ocr = c
		closers = append(closers, closeOCR)
	}

	slog.Info("inference endpoints ready",
		"transport", cfg.InferenceTransport,
		"vision_model", cfg.InferenceModel,
		"ocr_enabled", cfg.OCREnabled,
	)

	release := func() {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		if err := errors.Join(errs...); err != nil {
			slog.Warn("inference transport close failed", "error", err)
		}
	}
	return orchestrator.New(cfg, vision, ocr, opts...), release, nil
}
