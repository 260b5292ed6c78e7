package ad

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func validProduct() ProductInfo {
	return ProductInfo{
		Name:        "Aurora Lamp",
		Description: "A dimmable desk lamp",
		Audience:    "Remote workers",
		Style:       StyleMinimalist,
		Image:       Image{Data: pngHeader, MIMEType: MIMEPNG},
	}
}

func TestProductValidate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		assert.NoError(t, validProduct().Validate())
	})

	cases := map[string]func(p *ProductInfo){
		"MissingName":     func(p *ProductInfo) { p.Name = "  " },
		"MissingDesc":     func(p *ProductInfo) { p.Description = "" },
		"MissingAudience": func(p *ProductInfo) { p.Audience = "" },
		"UnknownStyle":    func(p *ProductInfo) { p.Style = "Gothic" },
		"MissingImage":    func(p *ProductInfo) { p.Image = Image{} },
	}
	for name, mutate := range cases {
		t.Run("Failure/"+name, func(t *testing.T) {
			p := validProduct()
			mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			assert.Equal(t, requiredFieldsMessage, err.Error())
		})
	}
}

func TestNormalize(t *testing.T) {
	p := validProduct()
	p.OverlayText = "   "
	p.Logo = &Image{}
	p = p.Normalize()

	_, ok := p.CustomOverlay()
	assert.False(t, ok)
	assert.Nil(t, p.Logo)
	assert.False(t, p.HasLogo())

	p.OverlayText = "  Shop Now "
	text, ok := p.Normalize().CustomOverlay()
	assert.True(t, ok)
	assert.Equal(t, "Shop Now", text)
}

func TestLimitsReadImage(t *testing.T) {
	limits := Limits{ProductImageBytes: 16, LogoBytes: 8}

	t.Run("Success/SniffsGenericType", func(t *testing.T) {
		img, err := limits.ReadProductImage(bytes.NewReader(pngHeader), "application/octet-stream")
		require.NoError(t, err)
		assert.Equal(t, MIMEPNG, img.MIMEType)
		assert.Equal(t, pngHeader, img.Data)
	})

	t.Run("Success/NormalisesJPG", func(t *testing.T) {
		img, err := limits.ReadProductImage(strings.NewReader("jpegbytes"), "image/jpg; charset=binary")
		require.NoError(t, err)
		assert.Equal(t, MIMEJPEG, img.MIMEType)
	})

	t.Run("Failure/TooLarge", func(t *testing.T) {
		_, err := Limits{ProductImageBytes: 4 << 20}.ReadProductImage(bytes.NewReader(make([]byte, 4<<20+1)), MIMEPNG)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrValidation))
		assert.True(t, errors.Is(err, ErrTooLarge))
		assert.Equal(t, "Product image size must be less than 4MB.", err.Error())
	})

	t.Run("Failure/LogoTooLarge", func(t *testing.T) {
		_, err := DefaultLimits.ReadLogo(bytes.NewReader(make([]byte, 3<<20)), MIMEPNG)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTooLarge))
		assert.Equal(t, "Logo image size must be less than 2MB.", err.Error())
	})

	t.Run("Failure/UnsupportedType", func(t *testing.T) {
		_, err := limits.ReadLogo(strings.NewReader("GIF89a"), "image/gif")
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "logo", verr.Field)
		assert.False(t, errors.Is(err, ErrTooLarge))
	})
}

func TestParseStyle(t *testing.T) {
	s, ok := ParseStyle("vibrant_bold")
	require.True(t, ok)
	assert.Equal(t, StyleVibrantBold, s)

	s, ok = ParseStyle("dark & moody")
	require.True(t, ok)
	assert.Equal(t, StyleDarkMoody, s)
	assert.Equal(t, "dark_moody", s.Key())

	_, ok = ParseStyle("Baroque")
	assert.False(t, ok)
	assert.Len(t, Styles(), 10)
	assert.True(t, DefaultStyle.Valid())
}

func TestVariantFileName(t *testing.T) {
	v := Variant{HeadlineSuggestion: "Crème Brûlée, Reinvented!", Image: Image{MIMEType: MIMEPNG}}
	assert.Equal(t, "ad-variant-creme-brulee-reinvented.png", v.FileName())

	long := Variant{HeadlineSuggestion: strings.Repeat("glow ", 20)}
	name := long.FileName()
	slug := strings.TrimSuffix(strings.TrimPrefix(name, "ad-variant-"), ".png")
	assert.LessOrEqual(t, len(slug), maxSlugLen)
	assert.False(t, strings.HasSuffix(slug, "-"))

	assert.Equal(t, "ad-variant-ad.png", Variant{HeadlineSuggestion: "!!!"}.FileName())
}

func TestImageDataURL(t *testing.T) {
	assert.Equal(t, "", Image{}.DataURL())
	assert.Equal(t, "data:image/png;base64,AQI=", Image{Data: []byte{1, 2}}.DataURL())
}
