package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blegw/internal/drain"
	"github.com/srg/blegw/internal/gateway"
	"github.com/srg/blegw/internal/scan"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format '%s': must be one of [%s %s]", format, formatTable, formatJSON)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderDevicesTable renders scan results, strongest signal first.
func renderDevicesTable(records []scan.DeviceRecord) string {
	if len(records) == 0 {
		return "No devices found."
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		name := rec.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{
			rec.Address,
			string(rec.AddressKind),
			name,
			strconv.Itoa(rec.RSSI),
			strconv.Itoa(rec.Seen),
			rec.LastSeen.Format("15:04:05"),
		})
	}
	return renderTable(
		[]string{"Address", "Type", "Name", "RSSI", "Seen", "Last Seen"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

// renderConnectedTable renders the gateway's connected device list.
func renderConnectedTable(nodes []gateway.ConnectedNode) string {
	if len(nodes) == 0 {
		return "No connected devices."
	}

	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		name := n.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{
			n.Address.Address,
			string(n.Address.Kind),
			name,
			strconv.Itoa(n.ChipID),
			n.ConnectionState,
		})
	}
	return renderTable(
		[]string{"Address", "Type", "Name", "Chip", "State"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

// notificationPrinter writes one line per notification.
type notificationPrinter struct {
	out    io.Writer
	raw    bool
	device *color.Color
	value  *color.Color
}

func newNotificationPrinter(out io.Writer, raw, colors bool) *notificationPrinter {
	device := color.New(color.FgCyan)
	value := color.New(color.FgGreen)
	if colors {
		device.EnableColor()
		value.EnableColor()
	} else {
		device.DisableColor()
		value.DisableColor()
	}
	return &notificationPrinter{out: out, raw: raw, device: device, value: value}
}

func (p *notificationPrinter) Print(n gateway.Notification) {
	if p.raw || n.DeviceID == "" {
		fmt.Fprintln(p.out, n.Raw)
		return
	}
	fmt.Fprintf(p.out, "%s handle=%d value=%s\n", p.device.Sprint(n.DeviceID), n.Handle, p.value.Sprint(n.Value))
}

// attemptSummary is the printable outcome of a connect command.
type attemptSummary struct {
	Address  string `json:"address"`
	Type     string `json:"type"`
	Stage    string `json:"stage"`
	Result   string `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

func summarizeAttempt(res drain.Result) attemptSummary {
	s := attemptSummary{
		Address:  res.Entry.DeviceID,
		Type:     string(res.Entry.AddressKind),
		Stage:    string(res.Stage),
		Result:   res.ConnectBody,
		Duration: res.Duration.Round(time.Millisecond).String(),
	}
	if res.Err != nil {
		s.Error = FormatUserError(res.Err)
	}
	return s
}
