package loader

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ridoystarlord/sheetmatch/mapping"
	"github.com/ridoystarlord/sheetmatch/schema"
)

type catalogFile struct {
	Tables []schema.TableSchema `yaml:"tables"`
}

type sheetsFile struct {
	Sheets []mapping.RawSheet `yaml:"sheets"`
}

// LoadCatalogFromYAML reads an offline catalog snapshot:
//
//	tables:
//	  - name: loans
//	    columns:
//	      - {name: loan_id, type: text, required: true}
func LoadCatalogFromYAML(filename string) (*schema.Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: reading catalog file: %v", schema.ErrCatalogUnavailable, err)
	}

	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling YAML: %v", schema.ErrCatalogUnavailable, err)
	}

	for _, t := range cf.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: table without a name in %s", schema.ErrCatalogUnavailable, filename)
		}
	}
	return schema.NewCatalog(cf.Tables), nil
}

// LoadSheetsFromYAML reads parsed sheets, as a file parser would hand them
// over:
//
//	sheets:
//	  - sheet: Loans
//	    headers: [Loan ID, Borrower FICO]
//	    rows:
//	      - [L001, 764]
func LoadSheetsFromYAML(filename string) ([]mapping.RawSheet, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading sheets file: %w", err)
	}

	var sf sheetsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("unmarshalling YAML: %w", err)
	}

	for i := range sf.Sheets {
		if sf.Sheets[i].TotalRowCount == 0 {
			sf.Sheets[i].TotalRowCount = len(sf.Sheets[i].SampleRows)
		}
	}
	return sf.Sheets, nil
}
