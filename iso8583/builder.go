package iso8583

import "strings"

// Builder assembles a Message field by field. The first error encountered is
// kept and returned by Build; later calls become no-ops.
type Builder struct {
	msg *Message
	err error
}

// NewBuilder starts a message with the given MTI.
func NewBuilder(mti string) *Builder {
	b := &Builder{msg: NewMessage(mti)}
	b.err = validateMTI(mti)
	return b
}

func (b *Builder) Field(de int, value string) *Builder {
	if b.err == nil {
		b.err = b.msg.SetField(de, value)
	}
	return b
}

// OptionalField sets de only when value is non-empty.
func (b *Builder) OptionalField(de int, value string) *Builder {
	if value == "" {
		return b
	}
	return b.Field(de, value)
}

// CopyFrom copies the listed data elements from src when present.
func (b *Builder) CopyFrom(src *Message, des ...int) *Builder {
	if b.err == nil && src != nil {
		b.err = b.msg.CopyFields(src, des...)
	}
	return b
}

func (b *Builder) PAN(pan string) *Builder {
	return b.Field(FieldPAN, pan)
}

func (b *Builder) ProcessingCode(code string) *Builder {
	return b.Field(FieldProcessingCode, code)
}

func (b *Builder) Amount(minorUnits string) *Builder {
	return b.Field(FieldAmount, minorUnits)
}

func (b *Builder) STAN(stan string) *Builder {
	return b.Field(FieldSTAN, stan)
}

func (b *Builder) TerminalID(id string) *Builder {
	return b.Field(FieldTerminalID, id)
}

// MerchantID sets DE42 right-padded with spaces to its fixed width.
func (b *Builder) MerchantID(id string) *Builder {
	if pad := 15 - len(id); pad > 0 {
		id += strings.Repeat(" ", pad)
	}
	return b.Field(FieldMerchantID, id)
}

func (b *Builder) ResponseCode(code string) *Builder {
	return b.Field(FieldResponseCode, code)
}

// Build returns the assembled message or the first error recorded.
func (b *Builder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.msg, nil
}

// MustBuild is like Build but panics on error. Intended for tests and
// fixed message templates.
func (b *Builder) MustBuild() *Message {
	msg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return msg
}
