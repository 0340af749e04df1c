package capture

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var (
	poseHeader   = []string{"timestamp", "camera_loc", "camera_rot"}
	actionHeader = []string{"timestamp", "action"}
)

// writePoseTable writes one row per sample, in buffer order.
func writePoseTable(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	cw.Write(poseHeader)
	for _, s := range samples {
		cw.Write([]string{strconv.Itoa(s.Seq), s.Position.String(), s.Rotation.String()})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write pose table: %w", err)
	}
	return nil
}

// writeActionTable writes one row per action. An empty log still gets a
// header.
func writeActionTable(w io.Writer, actions []Action) error {
	cw := csv.NewWriter(w)
	cw.Write(actionHeader)
	for _, a := range actions {
		cw.Write([]string{strconv.Itoa(a.Seq), a.String()})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write action table: %w", err)
	}
	return nil
}
