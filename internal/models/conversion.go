package models

import (
	"time"
)

// Direction identifies which conversion was requested.
type Direction string

const (
	// DirectionVideoToMP3 extracts an MP3 from a video upload.
	DirectionVideoToMP3 Direction = "video-to-mp3"
	// DirectionAudioToVideo renders a waveform video from an audio upload.
	DirectionAudioToVideo Direction = "audio-to-video"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionVideoToMP3 || d == DirectionAudioToVideo
}

// ConversionStatus is the terminal outcome of a conversion.
type ConversionStatus string

const (
	// ConversionStatusSucceeded means an output artifact was produced.
	ConversionStatusSucceeded ConversionStatus = "succeeded"
	// ConversionStatusFailed means no output artifact was produced.
	ConversionStatusFailed ConversionStatus = "failed"
)

// Conversion is the history record of one conversion request.
type Conversion struct {
	BaseModel

	Direction Direction        `gorm:"not null;size:20;index" json:"direction"`
	Status    ConversionStatus `gorm:"not null;size:20;index" json:"status"`

	// SourceName is the sanitised name of the uploaded file.
	SourceName string `gorm:"size:255" json:"source_name"`
	SourceSize int64  `json:"source_size"`

	// OutputName is empty when the conversion failed.
	OutputName string `gorm:"size:255;index" json:"output_name,omitempty"`
	OutputSize int64  `json:"output_size,omitempty"`

	// ErrorKind and Error describe a failure.
	ErrorKind string `gorm:"size:40" json:"error_kind,omitempty"`
	Error     string `gorm:"type:text" json:"error,omitempty"`

	// FPS and Frames are set for audio-to-video conversions.
	FPS    int `json:"fps,omitempty"`
	Frames int `json:"frames,omitempty"`

	// MediaDuration is the duration of the source audio, when known.
	MediaDuration time.Duration `json:"media_duration,omitempty"`
	// Elapsed is the wall time the conversion took.
	Elapsed time.Duration `json:"elapsed"`

	CompletedAt time.Time `gorm:"index" json:"completed_at"`
}

// TableName returns the table name for Conversion.
func (Conversion) TableName() string {
	return "conversions"
}

// Validate checks the record before persisting.
func (c *Conversion) Validate() error {
	if !c.Direction.Valid() {
		return ErrValidation{Field: "direction", Message: "unknown direction " + string(c.Direction)}
	}
	switch c.Status {
	case ConversionStatusSucceeded:
		if c.OutputName == "" {
			return ErrValidation{Field: "output_name", Message: "required for a successful conversion"}
		}
	case ConversionStatusFailed:
	default:
		return ErrValidation{Field: "status", Message: "unknown status " + string(c.Status)}
	}
	return nil
}

// Succeeded reports whether the conversion produced an artifact.
func (c *Conversion) Succeeded() bool {
	return c.Status == ConversionStatusSucceeded
}
