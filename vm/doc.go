// Package vm implements the rover virtual machine.
//
// This package contains:
//   - the flat instruction set and Program container
//   - the stepped Machine, with loop frames and a dice register
//   - the Agent interface a program drives
//   - the condition registry used by if instructions
//   - canonical CBOR program images and a decompiler
//
// A Machine executes exactly one instruction per Step; drivers decide the
// pace. Programs are produced by package compiler, which is installed with
// WithCompiler so that Compile can rebuild the program in place.
package vm
