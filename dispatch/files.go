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

package dispatch

import (
	"fmt"

	"axonflow/agentbridge/document"
	"axonflow/agentbridge/runnable"
)

// File is one uploaded attachment with its declared MIME type.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// MIME type tables for attachment classification.
var (
	imageTypes = map[string]bool{
		"image/png":  true,
		"image/jpeg": true,
		"image/jpg":  true,
		"image/webp": true,
	}
	audioTypes = map[string]bool{
		"audio/wav":  true,
		"audio/mp3":  true,
		"audio/mpeg": true,
	}
	videoTypes = map[string]bool{
		"video/x-flv":     true,
		"video/quicktime": true,
		"video/mpeg":      true,
		"video/mpegs":     true,
		"video/mpgs":      true,
		"video/mpg":       true,
		"video/mp4":       true,
		"video/webm":      true,
		"video/wmv":       true,
		"video/3gpp":      true,
	}
)

// SkippedFile records an attachment excluded from the run, with the reason.
// A skipped media file never aborts the request.
type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// classified holds the outcome of partitioning an upload batch.
type classified struct {
	Images    []runnable.Media
	Audio     []runnable.Media
	Videos    []runnable.Media
	Documents []document.Document
	Skipped   []SkippedFile
}

// classifyFiles partitions the upload batch by declared MIME type. Media
// files that fail to decode are skipped and recorded; an unsupported MIME
// type aborts the whole batch. Files already classified before the
// unsupported one are discarded with it, never partially applied.
func (d *Dispatcher) classifyFiles(files []File) (*classified, error) {
	out := &classified{}

	for _, f := range files {
		switch {
		case imageTypes[f.ContentType]:
			media, err := decodeMedia(f)
			if err != nil {
				out.Skipped = append(out.Skipped, SkippedFile{Name: f.Name, Reason: err.Error()})
				d.log.Warn("", "", "Skipping image attachment", map[string]interface{}{
					"file": f.Name, "error": err.Error(),
				})
				continue
			}
			out.Images = append(out.Images, media)

		case audioTypes[f.ContentType]:
			media, err := decodeMedia(f)
			if err != nil {
				out.Skipped = append(out.Skipped, SkippedFile{Name: f.Name, Reason: err.Error()})
				d.log.Warn("", "", "Skipping audio attachment", map[string]interface{}{
					"file": f.Name, "error": err.Error(),
				})
				continue
			}
			out.Audio = append(out.Audio, media)

		case videoTypes[f.ContentType]:
			media, err := decodeMedia(f)
			if err != nil {
				out.Skipped = append(out.Skipped, SkippedFile{Name: f.Name, Reason: err.Error()})
				d.log.Warn("", "", "Skipping video attachment", map[string]interface{}{
					"file": f.Name, "error": err.Error(),
				})
				continue
			}
			out.Videos = append(out.Videos, media)

		default:
			reader, ok := d.readers[f.ContentType]
			if !ok {
				return nil, errUnsupportedFileType(f.ContentType)
			}
			docs, err := reader.Read(f.Name, f.Data)
			if err != nil {
				// Unlike media decode failures, a broken document upload is a
				// request error: the caller asked for ingestion and got none.
				return nil, &Error{
					Kind:    KindUnsupportedFileType,
					Message: fmt.Sprintf("failed to parse document %s: %v", f.Name, err),
					cause:   err,
				}
			}
			out.Documents = append(out.Documents, docs...)
		}
	}

	return out, nil
}

// decodeMedia converts an uploaded media file to an inline media value.
func decodeMedia(f File) (runnable.Media, error) {
	if len(f.Data) == 0 {
		return runnable.Media{}, fmt.Errorf("empty media file: %s", f.Name)
	}
	return runnable.Media{
		ContentType: f.ContentType,
		Filename:    f.Name,
		Data:        f.Data,
	}, nil
}
