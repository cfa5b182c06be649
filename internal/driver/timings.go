package driver

import (
	"encoding/json"
	"fmt"

	"proxygen/internal/diag"
	"proxygen/internal/observ"
)

type timingPayload struct {
	Kind    string               `json:"kind"`
	TotalMS float64              `json:"total_ms"`
	Phases  []observ.PhaseReport `json:"phases"`
}

func timingDiagnostic(report observ.Report) (diag.Diagnostic, bool) {
	payload := timingPayload{Kind: "generate", TotalMS: report.TotalMS, Phases: report.Phases}
	data, err := json.Marshal(payload)
	if err != nil {
		return diag.Diagnostic{}, false
	}
	msg := fmt.Sprintf("timings (%s): total %.2f ms", payload.Kind, payload.TotalMS)
	return diag.New(diag.SevInfo, diag.ObsTimings, "", msg).WithNote("", string(data)), true
}
