package core

import "context"

// Sensors reads the environmental sensors.
type Sensors interface {
	// ReadClimate returns temperature in degrees Celsius and relative humidity in percent.
	ReadClimate(ctx context.Context) (temperature, humidity float64, err error)

	// ReadLight returns the raw light level.
	ReadLight(ctx context.Context) (int, error)
}

// Output drives the single digital output.
type Output interface {
	SetOutput(on bool) error
	Output() bool
}

// Flasher stages a firmware image. Nothing written becomes visible until
// Finalize succeeds; Abort discards the staged bytes.
type Flasher interface {
	Begin(size int64) error
	Write(p []byte) error
	Abort()
	Finalize(id FirmwareIdentity) error
}

// HAL (Hardware Abstraction Layer) is everything the agent needs from the board.
type HAL interface {
	Sensors
	Output
	Flasher

	// FirmwareIdentity returns the identity of the running firmware.
	FirmwareIdentity() FirmwareIdentity

	// Reboot restarts the device into the finalized image.
	Reboot() error
}
