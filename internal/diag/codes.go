package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// symbol reading
	SymInfo              Code = 1000
	SymModuleNotFound    Code = 1001
	SymFormatError       Code = 1002
	SymTimeout           Code = 1003
	SymPartialIndex      Code = 1004
	SymDuplicateModule   Code = 1005
	SymCacheUnavailable  Code = 1006
	SymDuplicateTypeName Code = 1007

	// model building
	ModInfo                 Code = 2000
	ModKeyMissing           Code = 2001
	ModDanglingAssociation  Code = 2002
	ModDanglingBase         Code = 2003
	ModMemberShadow         Code = 2004
	ModFragmentKindMismatch Code = 2005
	ModInheritanceCycle     Code = 2006
	ModUnknownType          Code = 2007
	ModInvalidShape         Code = 2008
	ModDependencySkipped    Code = 2009
	ModExternalReference    Code = 2010
	ModDuplicateService     Code = 2011

	// sharing decisions
	ShrInfo              Code = 3000
	ShrConflict          Code = 3001
	ShrUnverified        Code = 3002
	ShrDependencyCycle   Code = 3003
	ShrDependencySkipped Code = 3004
	ShrSharedType        Code = 3005

	// emission
	EmtInfo              Code = 4000
	EmtPostProcessFailed Code = 4001
	EmtReferencesSkipped Code = 4002
	EmtRenderFailed      Code = 4003

	// run level
	RunInfo       Code = 5000
	RunEmptyInput Code = 5001
	RunCancelled  Code = 5002

	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:             "Unknown error",
		SymInfo:                 "Symbol information",
		SymModuleNotFound:       "Module not found",
		SymFormatError:          "Incompatible symbol data",
		SymTimeout:              "Symbol read timed out",
		SymPartialIndex:         "Partial symbol data",
		SymDuplicateModule:      "Module listed more than once",
		SymCacheUnavailable:     "Symbol cache unavailable",
		SymDuplicateTypeName:    "Duplicate type in symbol data",
		ModInfo:                 "Model information",
		ModKeyMissing:           "Entity has no key member",
		ModDanglingAssociation:  "Association target not found",
		ModDanglingBase:         "Base type not found",
		ModMemberShadow:         "Member shadows another member",
		ModFragmentKindMismatch: "Type fragments disagree on kind",
		ModInheritanceCycle:     "Inheritance cycle",
		ModUnknownType:          "Unknown member type",
		ModInvalidShape:         "Invalid type shape",
		ModDependencySkipped:    "Dependency has errors",
		ModExternalReference:    "Reference resolved on the client",
		ModDuplicateService:     "Duplicate service definition",
		ShrInfo:                 "Sharing information",
		ShrConflict:             "Sharing conflict",
		ShrUnverified:           "Shared type not verified at member level",
		ShrDependencyCycle:      "Dependency cycle",
		ShrDependencySkipped:    "Dependency not generated",
		ShrSharedType:           "Type already shared with the client",
		EmtInfo:                 "Emission information",
		EmtPostProcessFailed:    "Post-processing failed",
		EmtReferencesSkipped:    "Unit references a skipped type",
		EmtRenderFailed:         "Unit rendering failed",
		RunInfo:                 "Run information",
		RunEmptyInput:           "No server types to generate",
		RunCancelled:            "Generation cancelled",
		ObsInfo:                 "Observability information",
		ObsTimings:              "Pipeline timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("SYM%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("MOD%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("SHR%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("EMT%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("RUN%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
