package main

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lakeside-health/triage-api/internal/model"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import patients from a CSV file",
	Long: `Reads a patient roster CSV and bulk loads it into the store.

Expected header: first_name,last_name plus any of mrn,dob,sex,phone.
dob must be YYYY-MM-DD.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(importFile)
		if err != nil {
			return eris.Wrap(err, "import: open csv")
		}
		defer f.Close()

		patients, err := parsePatientsCSV(f)
		if err != nil {
			return err
		}
		if len(patients) == 0 {
			zap.L().Info("no patient rows found", zap.String("file", importFile))
			return nil
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.ImportPatients(cmd.Context(), patients)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.Int64("imported", n))
		return nil
	},
}

// parsePatientsCSV reads a header-mapped patient roster. Unknown columns are
// ignored; first_name and last_name are required on every row.
func parsePatientsCSV(r io.Reader) ([]model.Patient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "import: read header")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["first_name"]; !ok {
		return nil, eris.New("import: csv missing first_name column")
	}
	if _, ok := cols["last_name"]; !ok {
		return nil, eris.New("import: csv missing last_name column")
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	optional := func(record []string, name string) *string {
		if v := field(record, name); v != "" {
			return &v
		}
		return nil
	}

	var patients []model.Patient
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "import: read row")
		}
		line++

		p := model.Patient{
			MRN:       optional(record, "mrn"),
			FirstName: field(record, "first_name"),
			LastName:  field(record, "last_name"),
			Sex:       optional(record, "sex"),
			Phone:     optional(record, "phone"),
		}
		if p.FirstName == "" || p.LastName == "" {
			return nil, eris.Errorf("import: line %d: first_name and last_name are required", line)
		}

		if raw := field(record, "dob"); raw != "" {
			dob, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, eris.Errorf("import: line %d: dob must be YYYY-MM-DD: %q", line, raw)
			}
			p.DOB = &dob
		}

		patients = append(patients, p)
	}
	return patients, nil
}

func init() {
	importCmd.Flags().StringVar(&importFile, "csv", "", "path to patient roster CSV")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
