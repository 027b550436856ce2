package appointment

import (
	"bufio"
	"fmt"
	"io"
)

const historyHeader = "IDCONSULTA\tFECHA\t\tIDMEDICO\tNIFCLIENTE\tANULADA"

// RenderHistory writes a doctor's history in the console format existing
// callers parse: a header line, then one tab separated line per appointment
// with Sí/No in the cancelled column.
func RenderHistory(w io.Writer, entries []HistoryEntry) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintln(bw, historyHeader); err != nil {
		return err
	}
	for _, e := range entries {
		cancelled := "No"
		if e.Cancelled {
			cancelled = "Sí"
		}
		if _, err := fmt.Fprintf(bw, "%d\t\t%s\t%d\t\t%s\t%s\n",
			e.AppointmentID, FormatDate(e.Date), e.DoctorID, e.PatientNIF, cancelled); err != nil {
			return err
		}
	}

	return bw.Flush()
}
