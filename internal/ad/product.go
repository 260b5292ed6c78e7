package ad

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
)

var (
	ErrValidation = errors.New("validation failed")
	// ErrTooLarge marks a ValidationError caused by an upload over its limit.
	ErrTooLarge = errors.New("upload too large")
)

// ValidationError is a local input problem. It is reported to the user as is
// and never reaches the generative capability.
type ValidationError struct {
	Field    string
	Message  string
	TooLarge bool
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || (e.TooLarge && target == ErrTooLarge)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type Image struct {
	Data     []byte `json:"data"`
	MIMEType string `json:"mimeType"`
}

func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// DataURL is the displayable reference of the image.
func (i Image) DataURL() string {
	if i.Empty() {
		return ""
	}
	mimeType := i.MIMEType
	if mimeType == "" {
		mimeType = MIMEPNG
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(i.Data))
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// ProductInfo is immutable once submitted.
type ProductInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Audience    string `json:"audience"`
	Style       Style  `json:"style"`
	OverlayText string `json:"overlayText,omitempty"`
	Image       Image  `json:"image"`
	Logo        *Image `json:"logo,omitempty"`
}

// CustomOverlay reports the user supplied overlay text, if any.
func (p ProductInfo) CustomOverlay() (string, bool) {
	text := strings.TrimSpace(p.OverlayText)
	return text, text != ""
}

func (p ProductInfo) HasLogo() bool {
	return p.Logo != nil && !p.Logo.Empty()
}

const requiredFieldsMessage = "Please fill out all required fields, upload a product image, and select an ad style."

// Validate checks the invariant that must hold before any orchestration call.
func (p ProductInfo) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return invalid("name", requiredFieldsMessage)
	case strings.TrimSpace(p.Description) == "":
		return invalid("description", requiredFieldsMessage)
	case strings.TrimSpace(p.Audience) == "":
		return invalid("audience", requiredFieldsMessage)
	case !p.Style.Valid():
		return invalid("style", requiredFieldsMessage)
	case p.Image.Empty():
		return invalid("product_image", requiredFieldsMessage)
	}
	return nil
}

// Normalize trims free text and drops a blank overlay override or empty logo.
func (p ProductInfo) Normalize() ProductInfo {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Audience = strings.TrimSpace(p.Audience)
	p.OverlayText = strings.TrimSpace(p.OverlayText)
	if p.Logo != nil && p.Logo.Empty() {
		p.Logo = nil
	}
	return p
}

type Limits struct {
	ProductImageBytes int64
	LogoBytes         int64
}

var DefaultLimits = Limits{
	ProductImageBytes: 4 << 20,
	LogoBytes:         2 << 20,
}

func (l Limits) ReadProductImage(r io.Reader, declaredType string) (Image, error) {
	return readImage(r, declaredType, l.ProductImageBytes, "product_image", "Product")
}

func (l Limits) ReadLogo(r io.Reader, declaredType string) (Image, error) {
	return readImage(r, declaredType, l.LogoBytes, "logo", "Logo")
}

func readImage(r io.Reader, declaredType string, max int64, field, label string) (Image, error) {
	reader := r
	if max > 0 {
		reader = io.LimitReader(r, max+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Image{}, invalid(field, "Could not process an image file. Please try another one.")
	}
	if max > 0 && int64(len(data)) > max {
		return Image{}, tooLarge(field, label, max)
	}
	if len(data) == 0 {
		return Image{}, invalid(field, requiredFieldsMessage)
	}

	mimeType := DetectMIMEType(declaredType, data)
	if mimeType != MIMEPNG && mimeType != MIMEJPEG {
		return Image{}, invalid(field, label+" image must be a PNG or JPG file.")
	}
	return Image{Data: data, MIMEType: mimeType}, nil
}

func tooLarge(field, label string, max int64) error {
	return &ValidationError{
		Field:    field,
		Message:  fmt.Sprintf("%s image size must be less than %dMB.", label, max>>20),
		TooLarge: true,
	}
}

// DetectMIMEType prefers the declared type and sniffs the payload when the
// declaration is missing or generic.
func DetectMIMEType(declared string, data []byte) string {
	mimeType := stripParams(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = stripParams(http.DetectContentType(data))
	}
	if mimeType == "image/jpg" {
		mimeType = MIMEJPEG
	}
	return mimeType
}

func stripParams(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	return strings.ToLower(mimeType)
}
