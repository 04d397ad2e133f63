package methods

import (
	"github.com/kirillkom/query-reformulator/internal/core/ports"
)

// Registrar is the part of the method registry RegisterBuiltins needs.
type Registrar interface {
	Register(info ports.MethodInfo, factory ports.MethodFactory) error
}

// RegisterBuiltins registers every built-in method. It fails on the first
// name collision.
func RegisterBuiltins(reg Registrar) error {
	builtins := []struct {
		info    ports.MethodInfo
		factory ports.MethodFactory
	}{
		{GenQRInfo, NewGenQR},
		{GenQREnsembleInfo, NewGenQREnsemble},
		{Query2DocInfo, NewQuery2Doc},
		{MuGIInfo, NewMuGI},
		{LameRInfo, NewLameR},
		{QAExpandInfo, NewQAExpand},
		{CSQEInfo, NewCSQE},
		{Query2EInfo, NewQuery2E},
	}
	for _, b := range builtins {
		if err := reg.Register(b.info, b.factory); err != nil {
			return err
		}
	}
	return nil
}
