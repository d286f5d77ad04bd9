package utils

import (
	"errors"
	"fmt"
	"strings"
)

var ErrOverlappingFields = errors.New("frame fields overlap or are not sorted")

type AsciiFrameField struct {
	// Name of the field
	Name string

	// Units within the frame the field begins from
	Begin int

	// Field width
	Width int
}

// The first unit within the frame used by the next field
func (f *AsciiFrameField) PastTopUnit() int {
	return f.Begin + f.Width
}

type asciiFrameColumn struct {
	index string
	name  string
	width string
	size  int
}

const (
	arrowTipLeft  = "<-"
	arrowTipRight = "->"
)

// Writes text centered in a cell of the given size. Extra padding goes to the right.
func centered(builder *strings.Builder, text string, filler string, size int) {
	left := (size - len(text)) / 2
	right := size - len(text) - left

	builder.WriteString(strings.Repeat(filler, left))
	builder.WriteString(text)
	builder.WriteString(strings.Repeat(filler, right))
}

func fillAsciiFrameGaps(fields []AsciiFrameField, frameWidth int) ([]AsciiFrameField, error) {
	result := make([]AsciiFrameField, 0, len(fields)+1)
	currentUnit := 0

	for _, field := range fields {
		if field.Begin < currentUnit {
			return nil, MakeError(ErrOverlappingFields, "field '%v' begins at %v but previous field ends at %v", field.Name, field.Begin, currentUnit)
		}

		if field.Begin > currentUnit {
			result = append(result, AsciiFrameField{
				Name:  "(unused)",
				Begin: currentUnit,
				Width: field.Begin - currentUnit,
			})
		}

		result = append(result, field)
		currentUnit = field.PastTopUnit()
	}

	if currentUnit < frameWidth {
		result = append(result, AsciiFrameField{
			Name:  "(unused)",
			Begin: currentUnit,
			Width: frameWidth - currentUnit,
		})
	}

	return result, nil
}

// Prints an ascii diagram of a frame laid out in stream order, first unit on
// the left. Fields must be sorted by Begin; gaps up to frameWidth are drawn as
// unused. The index row shows the offset each field begins at, followed by the
// offset past the last one.
func AsciiFrame(fields []AsciiFrameField, frameWidth int, unit string, leftpad int) (string, error) {
	allFields, err := fillAsciiFrameGaps(fields, frameWidth)
	if err != nil {
		return "", err
	}

	end := frameWidth
	if len(allFields) > 0 {
		end = allFields[len(allFields)-1].PastTopUnit()
	}

	columns := Map(allFields, func(field AsciiFrameField) asciiFrameColumn {
		column := asciiFrameColumn{
			index: fmt.Sprint(field.Begin),
			name:  fmt.Sprintf(" %v ", field.Name),
			width: fmt.Sprintf(" %v %v ", field.Width, unit),
		}

		column.size = Max([]int{len(column.index), len(column.name), len(arrowTipLeft) + len(column.width) + len(arrowTipRight)})
		return column
	})

	var indices, border, body, widths strings.Builder
	pad := strings.Repeat(" ", leftpad)

	for _, row := range []*strings.Builder{&indices, &border, &body, &widths} {
		row.WriteString(pad)
	}

	for _, column := range columns {
		indices.WriteString(column.index)
		indices.WriteString(strings.Repeat(" ", column.size-len(column.index)+1))
		border.WriteString("+")
		border.WriteString(strings.Repeat("-", column.size))
		body.WriteString("|")
		centered(&body, column.name, " ", column.size)
		widths.WriteString(" ")
		widths.WriteString(arrowTipLeft)
		centered(&widths, column.width, "-", column.size-len(arrowTipLeft)-len(arrowTipRight))
		widths.WriteString(arrowTipRight)
	}

	indices.WriteString(fmt.Sprint(end))
	border.WriteString("+")
	body.WriteString("|")
	widths.WriteString(" ")

	return strings.Join([]string{indices.String(), border.String(), body.String(), border.String(), widths.String()}, "\n") + "\n", nil
}
