package iso8583

// PackagerOption customizes a Packager at construction.
type PackagerOption func(*Packager)

// WithFieldFormat sets or replaces the format of one data element.
func WithFieldFormat(de int, format FieldFormat) PackagerOption {
	return func(p *Packager) {
		p.formats[de] = format
	}
}

// WithFieldFormats sets or replaces several formats at once.
func WithFieldFormats(formats map[int]FieldFormat) PackagerOption {
	return func(p *Packager) {
		for de, f := range formats {
			p.formats[de] = f
		}
	}
}

// WithoutField removes a data element from the table, so messages carrying
// it fail to pack or unpack.
func WithoutField(de int) PackagerOption {
	return func(p *Packager) {
		delete(p.formats, de)
	}
}
