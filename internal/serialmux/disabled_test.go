package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"
)

var _ SerialMuxInterface = (*DisabledSerialMux)(nil)
var _ SerialMuxInterface = (*SerialMux[*TestableSerialPort])(nil)

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()

	if err := d.Initialize([]string{"PMTK101"}); err != nil {
		t.Errorf("Initialize() = %v", err)
	}
	if err := d.SendCommand("anything"); err != nil {
		t.Errorf("SendCommand() = %v", err)
	}

	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	_, ch2 := d.Subscribe()
	if err := d.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after Close")
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	_, ch3 := d.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("subscribing after Close should return a closed channel")
	}
}

func TestDisabledSerialMuxMonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := d.Monitor(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Monitor() = %v, want deadline exceeded", err)
	}
}
