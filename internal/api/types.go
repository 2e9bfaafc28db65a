// Package api provides the HTTP API server for the metadata registry.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/metacord-io/metacord/internal/registry"
)

type (
	// Version represents the API version response structure.
	Version struct {
		Version     string `json:"version"`
		ServiceName string `json:"serviceName"`
		BuildInfo   string `json:"buildInfo,omitempty"`
	}

	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// RegisterTypeRequest is the body of POST /api/v1/schemas.
	//
	// FileTypes distinguishes three states the same way the domain does:
	// omitted (nil) means "not declared", [] means "explicitly unrestricted",
	// non-empty restricts declared files to those types.
	RegisterTypeRequest struct {
		Name      string          `json:"name"`
		Schema    json.RawMessage `json:"schema"`
		FileTypes []string        `json:"fileTypes,omitempty"`
	}

	// AnalysisTypeResponse is one registered analysis-type version.
	// Schema is omitted when the caller asked for hideSchema.
	AnalysisTypeResponse struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Version   int             `json:"version"`
		Schema    json.RawMessage `json:"schema,omitempty"`
		FileTypes []string        `json:"fileTypes,omitempty"`
		CreatedAt time.Time       `json:"createdAt,omitempty"`
	}

	// ListTypesResponse is one page of registered analysis types.
	ListTypesResponse struct {
		Types  []AnalysisTypeResponse `json:"types"`
		Total  int                    `json:"total"`
		Offset int                    `json:"offset"`
		Limit  int                    `json:"limit"`
	}

	// StudyRequest is the body of POST /api/v1/studies.
	StudyRequest struct {
		StudyID      string                 `json:"studyId"`
		Name         string                 `json:"name"`
		Description  string                 `json:"description,omitempty"`
		Organization string                 `json:"organization,omitempty"`
		Info         map[string]interface{} `json:"info,omitempty"`
	}

	// StudyResponse is one study record.
	StudyResponse struct {
		StudyID      string                 `json:"studyId"`
		Name         string                 `json:"name"`
		Description  string                 `json:"description,omitempty"`
		Organization string                 `json:"organization,omitempty"`
		Info         map[string]interface{} `json:"info,omitempty"`
		CreatedAt    time.Time              `json:"createdAt"`
	}

	// SubmitResponse acknowledges a successful submission.
	SubmitResponse struct {
		AnalysisID string `json:"analysisId"`
		Status     string `json:"status"`
	}

	// StateResponse carries the current lifecycle state of an analysis.
	StateResponse struct {
		AnalysisID string `json:"analysisId"`
		State      string `json:"state"`
	}

	// StateChangeResponse is one append-only history record.
	StateChangeResponse struct {
		InitialState string    `json:"initialState"`
		UpdatedState string    `json:"updatedState"`
		UpdatedAt    time.Time `json:"updatedAt"`
	}

	// AnalysisResponse is the deep read of an analysis: the record, its files,
	// the composite sample tree and the chronological state history.
	AnalysisResponse struct {
		AnalysisID       string                 `json:"analysisId"`
		StudyID          string                 `json:"studyId"`
		State            string                 `json:"state"`
		AnalysisType     TypeRefResponse        `json:"analysisType"`
		Experiment       map[string]interface{} `json:"experiment,omitempty"`
		Samples          []SampleResponse       `json:"samples"`
		Files            []FileResponse         `json:"files"`
		CreatedAt        time.Time              `json:"createdAt"`
		UpdatedAt        time.Time              `json:"updatedAt"`
		PublishedAt      *time.Time             `json:"publishedAt,omitempty"`
		FirstPublishedAt *time.Time             `json:"firstPublishedAt,omitempty"`
		History          []StateChangeResponse  `json:"history"`
	}

	// TypeRefResponse identifies the analysis type a record was validated against.
	TypeRefResponse struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}

	// SampleResponse is one composite sample with its parent specimen and donor.
	SampleResponse struct {
		SampleID          string                 `json:"sampleId"`
		SubmitterSampleID string                 `json:"submitterSampleId"`
		SampleType        string                 `json:"sampleType,omitempty"`
		Specimen          SpecimenResponse       `json:"specimen"`
		Donor             DonorResponse          `json:"donor"`
		Info              map[string]interface{} `json:"info,omitempty"`
	}

	// SpecimenResponse is the specimen section of a composite sample.
	SpecimenResponse struct {
		SpecimenID          string                 `json:"specimenId"`
		SubmitterSpecimenID string                 `json:"submitterSpecimenId"`
		SpecimenType        string                 `json:"specimenType,omitempty"`
		TissueSource        string                 `json:"tissueSource,omitempty"`
		Info                map[string]interface{} `json:"info,omitempty"`
	}

	// DonorResponse is the donor section of a composite sample.
	DonorResponse struct {
		DonorID          string                 `json:"donorId"`
		SubmitterDonorID string                 `json:"submitterDonorId"`
		Gender           string                 `json:"gender,omitempty"`
		Info             map[string]interface{} `json:"info,omitempty"`
	}

	// FileResponse is one declared file entity.
	FileResponse struct {
		ObjectID   string                 `json:"objectId"`
		AnalysisID string                 `json:"analysisId"`
		StudyID    string                 `json:"studyId"`
		FileName   string                 `json:"fileName"`
		FileType   string                 `json:"fileType,omitempty"`
		FileSize   int64                  `json:"fileSize"`
		FileMD5    string                 `json:"fileMd5sum,omitempty"`
		FileAccess string                 `json:"fileAccess"`
		DataType   string                 `json:"dataType,omitempty"`
		Info       map[string]interface{} `json:"info,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "/ping", "/health")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// mapAnalysisResponse maps a domain analysis plus its history to the deep-read DTO.
func mapAnalysisResponse(analysis *registry.Analysis, history []registry.AnalysisStateChange) *AnalysisResponse {
	samples := make([]SampleResponse, 0, len(analysis.Samples))
	for i := range analysis.Samples {
		samples = append(samples, mapSampleResponse(&analysis.Samples[i]))
	}

	files := make([]FileResponse, 0, len(analysis.Files))
	for i := range analysis.Files {
		files = append(files, mapFileResponse(&analysis.Files[i]))
	}

	return &AnalysisResponse{
		AnalysisID: analysis.AnalysisID,
		StudyID:    analysis.StudyID,
		State:      analysis.State.String(),
		AnalysisType: TypeRefResponse{
			Name:    analysis.TypeName,
			Version: analysis.TypeVersion,
		},
		Experiment:       analysis.Experiment,
		Samples:          samples,
		Files:            files,
		CreatedAt:        analysis.CreatedAt,
		UpdatedAt:        analysis.UpdatedAt,
		PublishedAt:      analysis.PublishedAt,
		FirstPublishedAt: analysis.FirstPublishedAt,
		History:          mapHistoryResponse(history),
	}
}

// mapHistoryResponse maps state-change records to DTOs, preserving order.
func mapHistoryResponse(history []registry.AnalysisStateChange) []StateChangeResponse {
	out := make([]StateChangeResponse, 0, len(history))

	for _, change := range history {
		out = append(out, StateChangeResponse{
			InitialState: change.InitialState.String(),
			UpdatedState: change.UpdatedState.String(),
			UpdatedAt:    change.UpdatedAt,
		})
	}

	return out
}

// mapSampleResponse maps a composite sample to its DTO.
func mapSampleResponse(cs *registry.CompositeSample) SampleResponse {
	return SampleResponse{
		SampleID:          cs.Sample.SampleID,
		SubmitterSampleID: cs.Sample.SubmitterSampleID,
		SampleType:        cs.Sample.SampleType,
		Specimen: SpecimenResponse{
			SpecimenID:          cs.Specimen.SpecimenID,
			SubmitterSpecimenID: cs.Specimen.SubmitterSpecimenID,
			SpecimenType:        cs.Specimen.SpecimenType,
			TissueSource:        cs.Specimen.TissueSource,
			Info:                cs.Specimen.Info,
		},
		Donor: DonorResponse{
			DonorID:          cs.Donor.DonorID,
			SubmitterDonorID: cs.Donor.SubmitterDonorID,
			Gender:           cs.Donor.Gender,
			Info:             cs.Donor.Info,
		},
		Info: cs.Sample.Info,
	}
}

// mapFileResponse maps a file entity to its DTO.
func mapFileResponse(f *registry.File) FileResponse {
	return FileResponse{
		ObjectID:   f.ObjectID,
		AnalysisID: f.AnalysisID,
		StudyID:    f.StudyID,
		FileName:   f.FileName,
		FileType:   f.FileType,
		FileSize:   f.FileSize,
		FileMD5:    f.FileMD5,
		FileAccess: string(f.FileAccess),
		DataType:   f.DataType,
		Info:       f.Info,
	}
}

// mapStudyResponse maps a domain study to its DTO.
func mapStudyResponse(study *registry.Study) *StudyResponse {
	return &StudyResponse{
		StudyID:      study.StudyID,
		Name:         study.Name,
		Description:  study.Description,
		Organization: study.Organization,
		Info:         study.Info,
		CreatedAt:    study.CreatedAt,
	}
}
