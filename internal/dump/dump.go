// Package dump renders a decoded bytecode.Program as human-readable text
// or YAML, for the luavm command's -dump flag.
package dump

import (
	"fmt"
	"io"

	"github.com/mna/luavm/lang/bytecode"
	"gopkg.in/yaml.v3"
)

// Text writes a recursive, indented text dump of prog to w, one line per
// instruction, grouped by function prototype.
func Text(w io.Writer, prog *bytecode.Program) error {
	return dumpProtoText(w, prog.Main, 0)
}

func dumpProtoText(w io.Writer, p *bytecode.FunctionProto, depth int) error {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}

	name := p.Name
	if name == "" {
		name = "main"
	}
	if _, err := fmt.Fprintf(w, "%sfunction %s (%d params, %d upvalues, %d locals, max_stack=%d)\n",
		indent, name, p.NumParams, p.NumUpvalues, len(p.Locals), p.MaxStack); err != nil {
		return err
	}

	for pc, instr := range p.Code {
		if _, err := fmt.Fprintf(w, "%s  %4d  %-10s A=%d B=%d C=%d Bx=%d sBx=%d\n",
			indent, pc, instr.Op, instr.A, instr.B, instr.C, instr.Bx, instr.SBx); err != nil {
			return err
		}
	}

	for _, child := range p.Protos {
		if err := dumpProtoText(w, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// protoDump is the YAML projection of a FunctionProto: a plain,
// marshalable shadow of the decoded tree rather than the tree itself,
// since FunctionProto carries decoder-internal bookkeeping not meant for
// display.
type protoDump struct {
	Name        string             `yaml:"name,omitempty"`
	FirstLine   int64              `yaml:"first_line"`
	LastLine    int64              `yaml:"last_line"`
	NumParams   uint8              `yaml:"num_params"`
	NumUpvalues uint8              `yaml:"num_upvalues"`
	IsVararg    bool               `yaml:"is_vararg"`
	MaxStack    uint8              `yaml:"max_stack"`
	Code        []instructionDump  `yaml:"code"`
	Constants   []constantDump     `yaml:"constants,omitempty"`
	Locals      []string           `yaml:"locals,omitempty"`
	Upvalues    []string           `yaml:"upvalue_names,omitempty"`
	Protos      []protoDump        `yaml:"protos,omitempty"`
}

type instructionDump struct {
	Op  string `yaml:"op"`
	A   uint32 `yaml:"a"`
	B   uint32 `yaml:"b,omitempty"`
	C   uint32 `yaml:"c,omitempty"`
	Bx  uint32 `yaml:"bx,omitempty"`
	SBx int32  `yaml:"sbx,omitempty"`
}

type constantDump struct {
	Tag   string `yaml:"tag"`
	Value string `yaml:"value"`
}

// YAML writes a structured YAML dump of prog to w via gopkg.in/yaml.v3.
func YAML(w io.Writer, prog *bytecode.Program) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(toProtoDump(prog.Main))
}

func toProtoDump(p *bytecode.FunctionProto) protoDump {
	d := protoDump{
		Name:        p.Name,
		FirstLine:   p.FirstLine,
		LastLine:    p.LastLine,
		NumParams:   p.NumParams,
		NumUpvalues: p.NumUpvalues,
		IsVararg:    p.IsVararg != 0,
		MaxStack:    p.MaxStack,
		Upvalues:    p.UpvalueNames,
	}
	for _, instr := range p.Code {
		d.Code = append(d.Code, instructionDump{
			Op: instr.Op.String(), A: instr.A, B: instr.B, C: instr.C, Bx: instr.Bx, SBx: instr.SBx,
		})
	}
	for _, c := range p.Constants {
		d.Constants = append(d.Constants, constantDump{Tag: constantTagName(c.Tag), Value: constantValueString(c)})
	}
	for _, l := range p.Locals {
		d.Locals = append(d.Locals, l.Name)
	}
	for _, child := range p.Protos {
		d.Protos = append(d.Protos, toProtoDump(child))
	}
	return d
}

func constantTagName(tag bytecode.ConstantTag) string {
	switch tag {
	case bytecode.TagNil:
		return "nil"
	case bytecode.TagBoolean:
		return "boolean"
	case bytecode.TagNumber:
		return "number"
	case bytecode.TagString:
		return "string"
	default:
		return "unknown"
	}
}

func constantValueString(c bytecode.Constant) string {
	switch c.Tag {
	case bytecode.TagNil:
		return "nil"
	case bytecode.TagBoolean:
		if c.Boolean {
			return "true"
		}
		return "false"
	case bytecode.TagNumber:
		return fmt.Sprintf("%g", c.Number)
	case bytecode.TagString:
		return c.String
	default:
		return ""
	}
}
