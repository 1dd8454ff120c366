package infrastructure

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"orderops/internal/bom/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadSheet lit une feuille CSV (UTF-8, BOM optionnel, lignes de longueur variable)
func ReadSheet(r io.Reader) ([][]string, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read BOM sheet: %w", err)
	}
	return rows, nil
}

// ReadSheetFile ouvre et lit une feuille CSV
func ReadSheetFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSheet(f)
}

// LoadSlotLayout lit une disposition YAML; les champs absents gardent la valeur par défaut
func LoadSlotLayout(path string) (*domain.CompiledLayout, error) {
	layout := domain.DefaultSlotLayout()
	if path == "" {
		return layout.Compile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slot layout: %w", err)
	}
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parse slot layout %s: %w", path, err)
	}
	return layout.Compile()
}
