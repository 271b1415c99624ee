// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package document

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// TextReader handles text/plain uploads.
type TextReader struct{}

// Read returns the file content as a single document.
func (TextReader) Read(name string, data []byte) ([]Document, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty text file: %s", name)
	}
	return []Document{{Name: name, Content: string(data)}}, nil
}

// JSONReader handles application/json uploads.
type JSONReader struct{}

// Read validates the payload and returns it compacted as a single document.
func (JSONReader) Read(name string, data []byte) ([]Document, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON in file: %s", name)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return nil, fmt.Errorf("failed to compact JSON in file %s: %w", name, err)
	}
	return []Document{{Name: name, Content: compact.String()}}, nil
}

// CSVReader handles text/csv uploads.
type CSVReader struct{}

// Read produces one document per CSV row so the rows index independently.
func (CSVReader) Read(name string, data []byte) ([]Document, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	var docs []Document
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV file %s: %w", name, err)
		}
		row++
		docs = append(docs, Document{
			Name:    fmt.Sprintf("%s:%d", name, row),
			Content: strings.Join(record, ", "),
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("empty CSV file: %s", name)
	}
	return docs, nil
}

// DocxReader handles OOXML word documents. It extracts the text runs from
// word/document.xml inside the package zip.
type DocxReader struct{}

// Read returns the concatenated text content as a single document.
func (DocxReader) Read(name string, data []byte) ([]Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx file %s: %w", name, err)
	}

	var docXML io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open document.xml in %s: %w", name, err)
			}
			break
		}
	}
	if docXML == nil {
		return nil, fmt.Errorf("no document.xml found in docx file: %s", name)
	}
	defer func() { _ = docXML.Close() }()

	text, err := extractDocxText(docXML)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", name, err)
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in docx file: %s", name)
	}
	return []Document{{Name: name, Content: text}}, nil
}

// extractDocxText collects the character data of w:t elements, inserting a
// newline at each paragraph boundary (w:p).
func extractDocxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inTextRun := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				inTextRun = true
			}
		case xml.EndElement:
			if el.Name.Local == "t" {
				inTextRun = false
			}
			if el.Name.Local == "p" && sb.Len() > 0 {
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inTextRun {
				sb.Write(el)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
