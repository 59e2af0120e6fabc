// Command test-osc is a manual test for the OSC output.
// It sends a sweep of fake heart-rate samples to the receiver so the
// avatar parameter or chatbox can be checked without a strap.
//
// Usage:
//
//	go run ./cmd/test-osc [--receiver 127.0.0.1:9000] [--mode continuous|chatbox]
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/hrbridge/internal/forward"
	"github.com/chaz8081/hrbridge/internal/heartrate"
)

func main() {
	receiver := flag.String("receiver", "127.0.0.1:9000", "OSC receiver address")
	sender := flag.String("sender", "127.0.0.1:0", "local address to send from")
	mode := flag.String("mode", forward.ModeContinuous, "forwarding mode: continuous or chatbox")
	from := flag.Int("from", 60, "first bpm")
	to := flag.Int("to", 180, "last bpm")
	step := flag.Duration("step", 250*time.Millisecond, "delay between samples")
	flag.Parse()

	transport, err := forward.ListenUDP(*sender, *receiver)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer transport.Close()

	fwd, err := forward.NewForMode(transport, *mode, forward.Options{
		MinInterval:   2 * time.Second,
		ChatboxFormat: forward.DefaultChatboxFormat,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Sending %d..%d bpm from %s to %s (%s mode)\n", *from, *to, transport.LocalAddr(), *receiver, *mode)

	for bpm := *from; bpm <= *to && bpm <= 255; bpm++ {
		sent, err := fwd.Forward(heartrate.Sample{BPM: uint8(bpm), At: time.Now()})
		switch {
		case err != nil:
			fmt.Printf("  %3d bpm: error: %v\n", bpm, err)
		case sent:
			fmt.Printf("  %3d bpm -> %.3f\n", bpm, heartrate.Normalize(uint8(bpm)))
		}
		time.Sleep(*step)
	}

	fmt.Println("\nDone!")
}
