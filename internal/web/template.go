package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/smartfarm/field-controller/internal/sensor"
	"github.com/smartfarm/field-controller/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Field Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.bad { color: red; font-weight: bold; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; padding: 4px 12px; margin-right: 8px; }
</style>
</head>
<body>
<h1>Field Controller</h1>

<h2>Irrigation</h2>
<table>
<tr><th>Phase</th><td class="{{if eq (printf "%s" .Phase) "IRRIGATING"}}on{{else if eq (printf "%s" .Phase) "SUSPENDED"}}bad{{else}}off{{end}}">{{.Phase}}</td></tr>
<tr><th>Pump</th><td class="{{if .PumpActive}}on{{else}}off{{end}}">{{if .PumpActive}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Threshold</th><td>{{pct .Threshold}}</td></tr>
<tr><th>Today</th><td>{{.DailyCount}} / {{.Config.MaxDaily}}</td></tr>
</table>

<h2>Sensors</h2>
<table>
{{range .Sensors}}<tr><th>{{.Name}}</th><td class="{{if .Disconnected}}bad{{else if not .Valid}}warn{{end}}">{{pct .Value}}{{if .Disconnected}} (disconnected){{else if not .Valid}} ({{.Reason}}){{end}}</td></tr>
{{end}}</table>

<h2>Safety</h2>
<table>
<tr><th>System</th><td class="{{if .SystemHealthy}}on{{else}}bad{{end}}">{{if .SystemHealthy}}healthy{{else}}degraded{{end}}</td></tr>
<tr><th>Emergency stop</th><td class="{{if .EmergencyStopped}}bad{{else}}off{{end}}">{{if .EmergencyStopped}}ENGAGED{{else}}clear{{end}}</td></tr>
<tr><th>Recovery attempts</th><td>{{.RecoveryAttempts}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Pump starts</th><td>{{.Counts.PumpStarts}}</td></tr>
<tr><th>Normal stops</th><td>{{.Counts.NormalStops}}</td></tr>
<tr><th>Forced stops</th><td>{{.Counts.ForcedStops}}</td></tr>
<tr><th>Rejected readings</th><td>{{.Counts.TotalRejections}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Watering</th><td>{{.Config.DurationMs}}ms</td></tr>
<tr><th>Cooldown</th><td>{{.Config.CooldownMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<form method="POST" action="/irrigate" style="display:inline"><button>Irrigate now</button></form>
<form method="POST" action="/reset" style="display:inline"><button>Reset</button></form>

<p><a href="/index.json">JSON</a> · <a href="/metrics">Metrics</a></p>
</body>
</html>
`

// sensorRow pairs a channel name with its reading for the template.
type sensorRow struct {
	Name string
	status.ChannelReading
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	rows := make([]sensorRow, 0, len(sensor.Channels))
	for _, ch := range sensor.Channels {
		rows = append(rows, sensorRow{Name: ch.String(), ChannelReading: snap.Channels[ch]})
	}

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Sensors []sensorRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Sensors:  rows,
	}
	indexTmpl.Execute(w, data)
}
