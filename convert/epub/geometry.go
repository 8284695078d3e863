package epub

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	pxPerInch          = 96.0 // printed CSS pixel is exactly 1/96 inch
	mmPerInch          = 25.4
	marginBoxMarginMm  = 40.0 // horizontal page margins
	defaultPageWidthMm = 210.0
)

var pageWidths = map[string]float64{
	"A5Portrait":  297.0 / 2,
	"A4Portrait":  210.0,
	"A5Landscape": 210.0 / 2,
	"A4Landscape": 297.0,
	"A6Portrait":  210.0 / 2,
	"A6Landscape": 297.0 / 2,
	"B5Portrait":  176.0,
}

var (
	reHeight     = regexp.MustCompile(`height:\s*\d+px`)
	reWidth      = lengthRegexp("width")
	reMarginLeft = lengthRegexp("margin-left")
)

func lengthRegexp(prop string) *regexp.Regexp {
	return regexp.MustCompile(`(.*` + regexp.QuoteMeta(prop) + `:\s*)(\d+)px(.*)`)
}

// PageWidthMm returns physical page width for page size class, unknown
// classes get default width.
func PageWidthMm(sizeClass string) float64 {
	if w, ok := pageWidths[sizeClass]; ok {
		return w
	}
	return defaultPageWidthMm
}

// Percent converts pixel length into percentage of margin box width with
// one decimal digit.
func Percent(px int, pageWidthMm float64) string {
	marginBoxInch := (pageWidthMm - marginBoxMarginMm) / mmPerInch
	v := math.RoundToEven(float64(px)/pxPerInch/marginBoxInch*1000) / 10
	return strconv.FormatFloat(v, 'f', 1, 64) + "%"
}

// convertLength replaces first "<prop>:<N>px" in style with percentage,
// reports false when there is nothing to convert.
func convertLength(re *regexp.Regexp, style string, pageWidthMm float64) (string, bool) {
	loc := re.FindStringSubmatchIndex(style)
	if loc == nil {
		return style, false
	}
	px, err := strconv.Atoi(style[loc[4]:loc[5]])
	if err != nil {
		return style, false
	}
	return style[:loc[3]] + Percent(px, pageWidthMm) + style[loc[6]:], true
}

// FixImageStyle rewrites absolute image geometry to values relative to the
// margin box: width and left margin become percentages, height becomes auto.
// Styles without pixel width are returned unchanged.
func FixImageStyle(style, sizeClass string) (string, bool) {
	mm := PageWidthMm(sizeClass)

	res, ok := convertLength(reWidth, style, mm)
	if !ok {
		return style, false
	}
	res = reHeight.ReplaceAllString(res, "height:auto")
	if !strings.Contains(res, "height") {
		res = "height:auto; " + res
	}
	res, _ = convertLength(reMarginLeft, res, mm)
	return res, true
}
