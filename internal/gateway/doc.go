// Package gateway is a client for the router-local REST and event-stream API of a
// Bluetooth Low Energy gateway.
//
// The gateway exposes:
//   - a scan event stream (GET /gap/nodes?event=1) filtered by RSSI, name pattern and scan mode
//   - connection control per device address (POST/DELETE /gap/nodes/<addr>/connection)
//   - characteristic value access by handle (GET /gatt/nodes/<addr>/handle/<h>/value[/<hex>])
//   - a notification/indication event stream for all connected devices (GET /gatt/nodes)
//
// Event streams are exposed as cancellable, non-restartable subscriptions that deliver parsed
// events through a channel. A transport error ends the subscription; it is never reconnected.
package gateway
