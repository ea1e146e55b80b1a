package report

import (
	"fmt"
	"io"

	"trafficwatch/internal/flowtable"
)

// WriteText renders entries as the plain text report described in
// spec.md §6: for each flow, a header line, the stats rendered, and a
// blank line. UTF-8, "\n" line endings throughout.
func WriteText(w io.Writer, entries []flowtable.Entry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "Address: %s\n", e.Key.SrcEndpoint()); err != nil {
			return err
		}
		if err := writeStats(w, e.Stats); err != nil {
			return err
		}
		if _, err := fmt.Fprint(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeStats(w io.Writer, s flowtable.Snapshot) error {
	_, err := fmt.Fprintf(w,
		"transmitted: %d bytes / %d packets\nreceived: %d bytes / %d packets\ndirection: %s\nprotocols: %s\ninitial: %s\nfinal: %s\n",
		s.TransmittedBytes, s.TransmittedPackets,
		s.ReceivedBytes, s.ReceivedPackets,
		s.Direction,
		protocolList(s.ProtocolsSeen),
		s.InitialTimestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		s.FinalTimestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	)
	return err
}

func protocolList(protos []flowtable.Transport) string {
	out := ""
	for i, p := range protos {
		if i > 0 {
			out += ","
		}
		out += string(p)
	}
	if out == "" {
		return "none"
	}
	return out
}
