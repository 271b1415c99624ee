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

// Package document turns uploaded file content into ingestible text units.
// Each supported document MIME type has a Reader; the dispatcher selects the
// reader by the declared content type of the upload.
package document

// Document is one ingestible content unit produced from an uploaded file.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Reader parses raw file bytes into one or more documents.
type Reader interface {
	Read(name string, data []byte) ([]Document, error)
}

// Supported document MIME types.
const (
	TypePDF  = "application/pdf"
	TypeCSV  = "text/csv"
	TypeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeText = "text/plain"
	TypeJSON = "application/json"
)

// DefaultReaders returns the reader table for all supported document types.
func DefaultReaders() map[string]Reader {
	return map[string]Reader{
		TypePDF:  PDFReader{},
		TypeCSV:  CSVReader{},
		TypeDocx: DocxReader{},
		TypeText: TextReader{},
		TypeJSON: JSONReader{},
	}
}
