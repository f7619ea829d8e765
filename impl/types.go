package impl

// FileNumber, SequenceNumber and Level are aliases rather than distinct
// types: they flow through uvarint-decoded uint64s and int loop counters
// all over this package, and an alias lets that arithmetic stay ordinary
// integer arithmetic instead of needing a conversion at every use.
type (
	FileNumber     = uint64
	SequenceNumber = uint64
	Level          = int
)
