// Vehicle telemetry record types sent to the event-notification endpoint
package telemetry

// MessageType classifies a telemetry record.
type MessageType string

// Message types understood by the event-notification endpoint.
const (
	TypePosition  MessageType = "Position"
	TypeEmergency MessageType = "Emergency"
)

// StatusOK is the only status value a generated record carries.
const StatusOK = "OK"

// Coordinates holds latitude and longitude as fixed-point decimal strings.
type Coordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// Record is one synthetic vehicle event. Field order is the wire order.
type Record struct {
	Type         MessageType `json:"type"`
	VehiclePlate string      `json:"vehicle_plate"`
	Coordinates  Coordinates `json:"coordinates"`
	Status       string      `json:"status"`
}

// RunConfig is the run-wide shape used to derive global indexes.
type RunConfig struct {
	VirtualUsers int
	Iterations   int
}

// IterationContext identifies one invocation of one virtual user.
// VirtualUser is 1-based, Iteration is 0-based.
type IterationContext struct {
	VirtualUser int
	Iteration   int
}
