package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// MaxPackageFile bounds any single file read out of an uploaded package.
const MaxPackageFile = 8 << 20

type Manifest struct {
	Resources []ManifestResource
}

type ManifestResource struct {
	Identifier string
	Href       string
	Type       string
	Files      []string
}

type imsManifest struct {
	XMLName   xml.Name      `xml:"manifest"`
	Resources []imsResource `xml:"resources>resource"`
}
type imsResource struct {
	Identifier string    `xml:"identifier,attr"`
	Href       string    `xml:"href,attr"`
	Type       string    `xml:"type,attr"`
	Files      []imsFile `xml:"file"`
}
type imsFile struct {
	Href string `xml:"href,attr"`
}

// Package is an opened content package. Files are read lazily from the zip.
type Package struct {
	Manifest Manifest
	// ItemHrefs lists item documents in manifest order.
	ItemHrefs []string

	files map[string]*zip.File
}

// Open reads the zip directory and its manifest. Nothing is unpacked to disk.
func Open(r io.ReaderAt, size int64) (*Package, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("qti: open zip: %w", err)
	}
	p := &Package{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p.files[path.Clean(f.Name)] = f
	}

	var raw []byte
	for _, name := range []string{"imsmanifest.xml", "manifest.xml"} {
		if _, ok := p.files[name]; ok {
			if raw, err = p.Read(name); err != nil {
				return nil, err
			}
			break
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("qti: imsmanifest.xml not found")
	}
	p.Manifest, p.ItemHrefs, err = ParseManifest(raw)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Read returns one file of the package by its manifest href.
func (p *Package) Read(href string) ([]byte, error) {
	f, ok := p.files[path.Clean(href)]
	if !ok {
		return nil, fmt.Errorf("qti: %s not in package", href)
	}
	if f.UncompressedSize64 > MaxPackageFile {
		return nil, fmt.Errorf("qti: %s is %d bytes, limit is %d", href, f.UncompressedSize64, MaxPackageFile)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("qti: open %s: %w", href, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(rc, MaxPackageFile+1)); err != nil {
		return nil, fmt.Errorf("qti: read %s: %w", href, err)
	}
	if buf.Len() > MaxPackageFile {
		return nil, fmt.Errorf("qti: %s exceeds %d bytes", href, MaxPackageFile)
	}
	return buf.Bytes(), nil
}

func ParseManifest(b []byte) (Manifest, []string, error) {
	var mf imsManifest
	if err := xml.Unmarshal(b, &mf); err != nil {
		return Manifest{}, nil, fmt.Errorf("qti: manifest: %w", err)
	}

	var out Manifest
	var items []string
	for _, r := range mf.Resources {
		res := ManifestResource{
			Identifier: r.Identifier,
			Href:       r.Href,
			Type:       r.Type,
		}
		for _, f := range r.Files {
			res.Files = append(res.Files, f.Href)
		}
		out.Resources = append(out.Resources, res)
		if strings.HasSuffix(strings.ToLower(r.Href), ".xml") &&
			!strings.Contains(strings.ToLower(r.Href), "manifest") {
			items = append(items, r.Href)
		}
	}
	return out, items, nil
}
