package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/srg/blegw/internal/app"
	"github.com/srg/blegw/internal/gateway"
)

// FormatUserError turns an error into a one-line message for the terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var serr *gateway.StatusError
	var uerr *url.Error
	var nerr net.Error

	switch {
	case errors.Is(err, app.ErrInstanceRunning):
		return err.Error()
	case errors.Is(err, gateway.ErrChipBusy):
		return fmt.Sprintf("%s (the gateway is busy with another connection, try again shortly)", err)
	case errors.As(err, &serr):
		msg := fmt.Sprintf("gateway rejected %s (HTTP %d)", serr.Op, serr.StatusCode)
		if serr.Body != "" {
			msg += ": " + serr.Body
		}
		return msg
	case errors.As(err, &nerr) && nerr.Timeout():
		return fmt.Sprintf("gateway did not answer in time: %s", err)
	case errors.As(err, &uerr):
		return fmt.Sprintf("cannot reach gateway at %s: %s", uerr.URL, uerr.Err)
	default:
		return err.Error()
	}
}
