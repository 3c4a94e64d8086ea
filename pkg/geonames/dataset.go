// Package geonames resolves place names against a GeoNames cities dump.
package geonames

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Place is one row of a GeoNames dump.
type Place struct {
	ID         int64
	Name       string
	ASCIIName  string
	AltNames   []string
	Country    string
	Population int64
}

// Names returns every name the place is known by, main name first.
func (p Place) Names() []string {
	names := make([]string, 0, 2+len(p.AltNames))
	names = append(names, p.Name)
	if p.ASCIIName != "" && p.ASCIIName != p.Name {
		names = append(names, p.ASCIIName)
	}
	return append(names, p.AltNames...)
}

// Column positions in the GeoNames "geoname" table.
const (
	colID         = 0
	colName       = 1
	colASCIIName  = 2
	colAltNames   = 3
	colCountry    = 8
	colPopulation = 14
	minColumns    = 15
)

// ParseDataset reads tab separated GeoNames rows. Places below minPopulation
// are skipped. Malformed rows are skipped, not fatal.
func ParseDataset(r io.Reader, minPopulation int64) ([]Place, error) {
	var places []Place
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < minColumns {
			continue
		}
		id, err := strconv.ParseInt(cols[colID], 10, 64)
		if err != nil {
			continue
		}
		pop, _ := strconv.ParseInt(cols[colPopulation], 10, 64)
		if pop < minPopulation {
			continue
		}

		p := Place{
			ID:         id,
			Name:       cols[colName],
			ASCIIName:  cols[colASCIIName],
			Country:    cols[colCountry],
			Population: pop,
		}
		if cols[colAltNames] != "" {
			for _, alt := range strings.Split(cols[colAltNames], ",") {
				if alt = strings.TrimSpace(alt); alt != "" {
					p.AltNames = append(p.AltNames, alt)
				}
			}
		}
		places = append(places, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read geonames dataset: %w", err)
	}
	return places, nil
}

// LoadFile parses a GeoNames dump, either the plain .txt or the .zip it is
// distributed as.
func LoadFile(path string, minPopulation int64) ([]Place, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return loadZip(path, minPopulation)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geonames dataset: %w", err)
	}
	defer f.Close()
	return ParseDataset(f, minPopulation)
}

func loadZip(path string, minPopulation int64) ([]Place, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open geonames archive: %w", err)
	}
	defer zr.Close()

	member := findMember(&zr.Reader)
	if member == nil {
		return nil, fmt.Errorf("no .txt dataset in %s", path)
	}
	rc, err := member.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", member.Name, err)
	}
	defer rc.Close()
	return ParseDataset(rc, minPopulation)
}

func findMember(zr *zip.Reader) *zip.File {
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() && strings.HasSuffix(f.Name, ".txt") && !strings.HasPrefix(filepath.Base(f.Name), "readme") {
			return f
		}
	}
	return nil
}
