package composite

// Field is a dense scalar buffer of one render, row-major.
type Field struct {
	Width  int
	Height int
	Values []float64
}

// NewField creates a zeroed field.
func NewField(width, height int) *Field {
	return &Field{Width: width, Height: height, Values: make([]float64, width*height)}
}

// At returns the value at pixel (x, y).
func (f *Field) At(x, y int) float64 {
	return f.Values[y*f.Width+x]
}

// Max returns the largest value in the field.
func (f *Field) Max() float64 {
	var m float64
	for _, v := range f.Values {
		if v > m {
			m = v
		}
	}
	return m
}

// Luminance returns the Rec. 601 luma of an 8-bit color, in [0,1].
func Luminance(r, g, b uint8) float64 {
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 255
}

// Accumulate reduces fetched images to a scalar field: each opaque or partly
// opaque pixel adds its luminance times the source weight. Absent images,
// sources with weight 0 and fully transparent pixels contribute nothing.
// Weights are taken as given, not renormalized over the images present.
func Accumulate(images []FetchedImage, weights WeightVector, size int) (*Field, []string) {
	field := NewField(size, size)
	var contributing []string

	for _, fi := range images {
		w := weights.Of(fi.SourceName)
		if fi.Absent() || w <= 0 {
			continue
		}
		contributing = append(contributing, fi.SourceName)

		img := fi.Pixels
		b := img.Bounds()
		for y := 0; y < size && y < b.Dy(); y++ {
			row := y * size
			for x := 0; x < size && x < b.Dx(); x++ {
				o := img.PixOffset(b.Min.X+x, b.Min.Y+y)
				px := img.Pix[o : o+4 : o+4]
				if px[3] == 0 {
					continue
				}
				field.Values[row+x] += Luminance(px[0], px[1], px[2]) * w
			}
		}
	}

	return field, contributing
}
