// ABOUTME: get_forecast and get_alerts tools backed by the NWS client
// ABOUTME: Upstream failures are logged and reported with a fixed message

package weather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/2389/tokengate-mcp/internal/tools"
)

// Tool names
const (
	ForecastName = "get_forecast"
	AlertsName   = "get_alerts"
)

// Caller-visible failure texts
const (
	ForecastFailedMessage = "Failed to retrieve forecast data for this location."
	AlertsFailedMessage   = "Failed to retrieve alerts data."
)

// forecastPeriods is how many periods get_forecast reports.
const forecastPeriods = 5

func bound(v float64) *float64 { return &v }

// ForecastTool returns the get_forecast tool.
func ForecastTool(c *Client, logger *slog.Logger) tools.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return tools.Tool{
		Name:        ForecastName,
		Description: "Get weather forecast for a location",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"latitude": {
				Type:        "number",
				Description: "Latitude of the location",
				Minimum:     bound(-90),
				Maximum:     bound(90),
			},
			"longitude": {
				Type:        "number",
				Description: "Longitude of the location",
				Minimum:     bound(-180),
				Maximum:     bound(180),
			},
		}, "latitude", "longitude"),
		Handler: func(ctx context.Context, args tools.Arguments) tools.Result {
			lat, _ := args.Float("latitude")
			lon, _ := args.Float("longitude")

			periods, err := c.Forecast(ctx, lat, lon)
			if err != nil {
				logger.Warn("forecast lookup failed", "latitude", lat, "longitude", lon, "error", err)
				return tools.Fail(tools.KindUpstream, ForecastFailedMessage, err)
			}
			if len(periods) == 0 {
				return tools.Fail(tools.KindUpstream, ForecastFailedMessage, fmt.Errorf("%w: no forecast periods", ErrUpstream))
			}
			return tools.Success(FormatForecast(periods))
		},
	}
}

// AlertsTool returns the get_alerts tool.
func AlertsTool(c *Client, logger *slog.Logger) tools.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return tools.Tool{
		Name:        AlertsName,
		Description: "Get weather alerts for a US state",
		InputSchema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"state": {
				Type:        "string",
				Description: "Two-letter US state code (e.g. CA, NY)",
				Pattern:     "^[A-Za-z]{2}$",
			},
		}, "state"),
		Handler: func(ctx context.Context, args tools.Arguments) tools.Result {
			state, _ := args.String("state")
			state = strings.ToUpper(state)

			alerts, err := c.Alerts(ctx, state)
			if err != nil {
				logger.Warn("alerts lookup failed", "state", state, "error", err)
				return tools.Fail(tools.KindUpstream, AlertsFailedMessage, err)
			}
			if len(alerts) == 0 {
				return tools.Success(fmt.Sprintf("No active alerts for %s.", state))
			}
			return tools.Success(FormatAlerts(alerts))
		},
	}
}

// FormatForecast renders the first few periods, separated by "---".
func FormatForecast(periods []Period) string {
	if len(periods) > forecastPeriods {
		periods = periods[:forecastPeriods]
	}
	parts := make([]string, 0, len(periods))
	for _, p := range periods {
		parts = append(parts, fmt.Sprintf("%s:\nTemperature: %d°%s\nWind: %s %s\nForecast: %s",
			p.Name, p.Temperature, p.TemperatureUnit, p.WindSpeed, p.WindDirection, p.DetailedForecast))
	}
	return strings.Join(parts, "\n---\n")
}

// FormatAlerts renders every alert, separated by "---".
func FormatAlerts(alerts []Alert) string {
	parts := make([]string, 0, len(alerts))
	for _, a := range alerts {
		parts = append(parts, fmt.Sprintf("Event: %s\nArea: %s\nSeverity: %s\nDescription: %s\nInstructions: %s",
			orUnknown(a.Event), orUnknown(a.AreaDesc), orUnknown(a.Severity),
			orNone(a.Description, "No description available"), orNone(a.Instruction, "No specific instructions provided")))
	}
	return strings.Join(parts, "\n---\n")
}

func orUnknown(s string) string { return orNone(s, "Unknown") }

func orNone(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
