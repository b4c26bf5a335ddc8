package radio

import (
	"context"
	"testing"
	"time"

	"github.com/radiomesh/radiomesh/pkg/mesh"
)

func TestFakeRadioBroadcastFanOut(t *testing.T) {
	medium := NewMedium(-42)
	a := medium.Join(mesh.DeviceID{1, 0, 0, 0})
	b := medium.Join(mesh.DeviceID{2, 0, 0, 0})
	c := medium.Join(mesh.DeviceID{3, 0, 0, 0})
	defer a.Close()
	defer b.Close()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Send(ctx, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	for _, r := range []*FakeRadio{b, c} {
		rx, err := r.Receive(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if string(rx.Data) != "hello" {
			t.Fatalf("got %q, want %q", rx.Data, "hello")
		}
		if rx.RSSI != -42 {
			t.Fatalf("RSSI = %d, want -42", rx.RSSI)
		}
	}
}

func TestFakeRadioDoesNotEchoToSender(t *testing.T) {
	medium := NewMedium(-40)
	a := medium.Join(mesh.DeviceID{1, 0, 0, 0})
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	a.Send(context.Background(), []byte("x"))

	_, err := a.Receive(ctx)
	if err == nil {
		t.Fatal("sender should not receive its own broadcast")
	}
	if kind, _ := mesh.KindOf(err); kind != mesh.ErrRadioRXTimeout {
		t.Fatalf("got kind %v, want ErrRadioRXTimeout", kind)
	}
}

func TestFakeRadioReceiveAfterCloseFails(t *testing.T) {
	medium := NewMedium(-40)
	a := medium.Join(mesh.DeviceID{1, 0, 0, 0})
	a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := a.Receive(ctx)
	if err == nil {
		t.Fatal("expected error receiving on a closed radio")
	}
	if kind, _ := mesh.KindOf(err); kind != mesh.ErrRadioFailure {
		t.Fatalf("got kind %v, want ErrRadioFailure", kind)
	}
}

func TestFakeRadioIsolatedMediumsDoNotCrossTalk(t *testing.T) {
	m1 := NewMedium(-40)
	m2 := NewMedium(-40)
	a := m1.Join(mesh.DeviceID{1, 0, 0, 0})
	b := m2.Join(mesh.DeviceID{2, 0, 0, 0})
	defer a.Close()
	defer b.Close()

	a.Send(context.Background(), []byte("only on m1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(ctx); err == nil {
		t.Fatal("radio on a different medium should not see the broadcast")
	}
}
