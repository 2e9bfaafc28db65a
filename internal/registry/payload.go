// Package registry: the inbound submission payload document.
//
// The payload is inherently a JSON document (it is validated against JSON
// Schemas), so unlike the persisted domain models these types carry JSON
// tags. ParsePayload is the single entry point for decoding.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrPayloadParsing is returned when the submitted payload is not valid JSON.
var ErrPayloadParsing = errors.New("payload is not valid JSON")

type (
	// Payload is the structured submission document: the analysis-type
	// reference, the donor/specimen/sample/file hierarchy, and the free-form
	// experiment extension validated by the analysis-type schema.
	Payload struct {
		AnalysisID   string                 `json:"analysisId,omitempty"`
		StudyID      string                 `json:"studyId"`
		AnalysisType PayloadTypeRef         `json:"analysisType"`
		Samples      []PayloadSample        `json:"samples"`
		Files        []PayloadFile          `json:"files"`
		Experiment   map[string]interface{} `json:"experiment,omitempty"`
	}

	// PayloadTypeRef references the analysis type to validate against.
	// Version 0 means "unspecified": the latest version is used.
	PayloadTypeRef struct {
		Name    string `json:"name"`
		Version int    `json:"version,omitempty"`
	}

	// PayloadSample is one sample with its parent specimen and donor.
	// System IDs are optional; when supplied they must agree with the IDs
	// the authority derives for the business keys.
	PayloadSample struct {
		SampleID          string                 `json:"sampleId,omitempty"`
		SubmitterSampleID string                 `json:"submitterSampleId"`
		SampleType        string                 `json:"sampleType"`
		Specimen          PayloadSpecimen        `json:"specimen"`
		Donor             PayloadDonor           `json:"donor"`
		Info              map[string]interface{} `json:"info,omitempty"`
	}

	// PayloadSpecimen is the specimen section of a payload sample.
	PayloadSpecimen struct {
		SpecimenID          string                 `json:"specimenId,omitempty"`
		SubmitterSpecimenID string                 `json:"submitterSpecimenId"`
		SpecimenType        string                 `json:"specimenType"`
		TissueSource        string                 `json:"tissueSource,omitempty"`
		Info                map[string]interface{} `json:"info,omitempty"`
	}

	// PayloadDonor is the donor section of a payload sample.
	PayloadDonor struct {
		DonorID          string                 `json:"donorId,omitempty"`
		SubmitterDonorID string                 `json:"submitterDonorId"`
		Gender           string                 `json:"gender,omitempty"`
		Info             map[string]interface{} `json:"info,omitempty"`
	}

	// PayloadFile is one declared file entry.
	PayloadFile struct {
		ObjectID   string                 `json:"objectId,omitempty"`
		FileName   string                 `json:"fileName"`
		FileType   string                 `json:"fileType"`
		FileSize   int64                  `json:"fileSize"`
		FileMD5    string                 `json:"fileMd5sum"`
		FileAccess string                 `json:"fileAccess"`
		DataType   string                 `json:"dataType,omitempty"`
		Info       map[string]interface{} `json:"info,omitempty"`
	}
)

// ParsePayload decodes a raw submission into its structured form.
//
// On malformed input the error echoes the raw text with '%' characters
// escaped, so the message is safe to pass through format-string APIs
// downstream.
func ParsePayload(raw []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrPayloadParsing, err.Error(), EscapePercent(string(raw)))
	}

	return &payload, nil
}

// EscapePercent escapes '%' characters so arbitrary submitted text can be
// used as a format-string argument without triggering verb expansion.
func EscapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
