package interp

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tamlang/tamvm/tam"
)

func (it *Interpreter) printInt() error {
	v, err := it.popInt()
	if err != nil {
		return err
	}
	fmt.Fprintf(it.Stdout, "%d", v)
	return nil
}

func (it *Interpreter) printFloat() error {
	v, err := it.popFloat()
	if err != nil {
		return err
	}
	fmt.Fprintf(it.Stdout, "%s", strconv.FormatFloat(float64(v), 'g', -1, 32))
	return nil
}

func (it *Interpreter) printBool() error {
	v, err := it.popBool()
	if err != nil {
		return err
	}
	fmt.Fprintf(it.Stdout, "%t", v)
	return nil
}

func (it *Interpreter) printString() error {
	idVal, err := it.State.PopStack()
	if err != nil {
		return err
	}
	id, err := idVal.AsInt()
	if err != nil {
		return err
	}
	s, err := it.Image.GetString(id)
	if err != nil {
		return err
	}
	fmt.Fprint(it.Stdout, s)
	return nil
}

func (it *Interpreter) printLine() error {
	fmt.Fprint(it.Stdout, "\n")
	return nil
}

func (it *Interpreter) scanner() *bufio.Scanner {
	if it.inputScanner == nil {
		s := bufio.NewScanner(it.Stdin)
		s.Split(bufio.ScanWords)
		it.inputScanner = s
	}
	return it.inputScanner
}

func (it *Interpreter) readInt() error {
	if !it.scanner().Scan() {
		return tam.NewError(tam.IoError, "unexpected end of input reading int")
	}
	v, err := strconv.Atoi(it.scanner().Text())
	if err != nil {
		return tam.NewError(tam.IoError, "malformed int input")
	}
	return it.State.PushStack(tam.IntValue(v))
}

func (it *Interpreter) readFloat() error {
	if !it.scanner().Scan() {
		return tam.NewError(tam.IoError, "unexpected end of input reading float")
	}
	v, err := strconv.ParseFloat(it.scanner().Text(), 32)
	if err != nil {
		return tam.NewError(tam.IoError, "malformed float input")
	}
	return it.State.PushStack(tam.FloatValueFromFloat32(float32(v)))
}

func (it *Interpreter) readBool() error {
	if !it.scanner().Scan() {
		return tam.NewError(tam.IoError, "unexpected end of input reading bool")
	}
	switch strings.ToLower(it.scanner().Text()) {
	case "true":
		return it.State.PushStack(tam.BoolValue(1))
	case "false":
		return it.State.PushStack(tam.BoolValue(0))
	default:
		return tam.NewError(tam.IoError, "malformed bool input")
	}
}

// --- matrix I/O ----------------------------------------------------------
//
// Matrices live on the stack as rows*cols words in row-major order. Read
// primitives consume a path-string id and produce rows*cols new words;
// write primitives consume a matrix and a path-string id, print the matrix
// to stdout with ", " row separators, and additionally write it to the
// target file with a bare "," separator — two different renderings of the
// same data on one primitive call.

func parseMatrixFile(path string, rows, cols int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tam.NewError(tam.IoError, "cannot open matrix file: "+err.Error())
	}
	defer f.Close()

	var lines [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		lines = append(lines, fields)
	}
	if len(lines) != rows {
		return nil, tam.NewError(tam.IoError, "matrix row count mismatch")
	}
	for _, row := range lines {
		if len(row) != cols {
			return nil, tam.NewError(tam.IoError, "matrix column count mismatch")
		}
	}
	return lines, nil
}

func (it *Interpreter) readIntMatrix(rows, cols int) error {
	pathVal, err := it.State.PopStack()
	if err != nil {
		return err
	}
	pathID, err := pathVal.AsInt()
	if err != nil {
		return err
	}
	path, err := it.Image.GetString(pathID)
	if err != nil {
		return err
	}
	fields, err := parseMatrixFile(path, rows, cols)
	if err != nil {
		return err
	}
	n := rows * cols
	base, err := it.State.IncStack(n)
	if err != nil {
		return err
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v, perr := strconv.Atoi(fields[r][c])
			if perr != nil {
				return tam.NewError(tam.IoError, "malformed int matrix entry")
			}
			if err := it.State.SetMem(base+r*cols+c, tam.IntValue(v)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (it *Interpreter) readFloatMatrix(rows, cols int) error {
	pathVal, err := it.State.PopStack()
	if err != nil {
		return err
	}
	pathID, err := pathVal.AsInt()
	if err != nil {
		return err
	}
	path, err := it.Image.GetString(pathID)
	if err != nil {
		return err
	}
	fields, err := parseMatrixFile(path, rows, cols)
	if err != nil {
		return err
	}
	n := rows * cols
	base, err := it.State.IncStack(n)
	if err != nil {
		return err
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v, perr := strconv.ParseFloat(fields[r][c], 32)
			if perr != nil {
				return tam.NewError(tam.IoError, "malformed float matrix entry")
			}
			if err := it.State.SetMem(base+r*cols+c, tam.FloatValueFromFloat32(float32(v))); err != nil {
				return err
			}
		}
	}
	return nil
}

// popIntMatrix removes the top rows*cols words from the stack and decodes
// them as ints, in row-major order.
func (it *Interpreter) popIntMatrix(rows, cols int) ([]int, error) {
	n := rows * cols
	st := it.State.GetRegI(tam.ST)
	base := st - n
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := it.State.GetMem(base + i)
		if err != nil {
			return nil, err
		}
		iv, err := v.AsInt()
		if err != nil {
			return nil, err
		}
		out[i] = iv
	}
	if _, err := it.State.DecStack(n); err != nil {
		return nil, err
	}
	return out, nil
}

func (it *Interpreter) popFloatMatrix(rows, cols int) ([]float32, error) {
	n := rows * cols
	st := it.State.GetRegI(tam.ST)
	base := st - n
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v, err := it.State.GetMem(base + i)
		if err != nil {
			return nil, err
		}
		fv, err := v.AsFloat()
		if err != nil {
			return nil, err
		}
		out[i] = fv
	}
	if _, err := it.State.DecStack(n); err != nil {
		return nil, err
	}
	return out, nil
}

func (it *Interpreter) writeIntMatrix(rows, cols int) error {
	pathVal, err := it.State.PopStack()
	if err != nil {
		return err
	}
	pathID, err := pathVal.AsInt()
	if err != nil {
		return err
	}
	path, err := it.Image.GetString(pathID)
	if err != nil {
		return err
	}
	data, err := it.popIntMatrix(rows, cols)
	if err != nil {
		return err
	}

	var console, file strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c > 0 {
				console.WriteString(", ")
				file.WriteString(",")
			}
			fmt.Fprintf(&console, "%d", data[r*cols+c])
			fmt.Fprintf(&file, "%d", data[r*cols+c])
		}
		console.WriteString("\n")
		file.WriteString("\n")
	}
	fmt.Fprint(it.Stdout, console.String())
	return os.WriteFile(path, []byte(file.String()), 0o644)
}

func (it *Interpreter) writeFloatMatrix(rows, cols int) error {
	pathVal, err := it.State.PopStack()
	if err != nil {
		return err
	}
	pathID, err := pathVal.AsInt()
	if err != nil {
		return err
	}
	path, err := it.Image.GetString(pathID)
	if err != nil {
		return err
	}
	data, err := it.popFloatMatrix(rows, cols)
	if err != nil {
		return err
	}

	fmtFloat := func(v float32) string { return strconv.FormatFloat(float64(v), 'g', -1, 32) }
	var console, file strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c > 0 {
				console.WriteString(", ")
				file.WriteString(",")
			}
			console.WriteString(fmtFloat(data[r*cols+c]))
			file.WriteString(fmtFloat(data[r*cols+c]))
		}
		console.WriteString("\n")
		file.WriteString("\n")
	}
	fmt.Fprint(it.Stdout, console.String())
	return os.WriteFile(path, []byte(file.String()), 0o644)
}

// matMulInt/matMulFloat pop cols, dim, rows (in that order) then the right
// matrix (dim x cols) then the left matrix (rows x dim) — push order was
// lmat, rmat, rows, dim, cols.
func (it *Interpreter) matMulInt() error {
	cols, err := it.popInt()
	if err != nil {
		return err
	}
	dim, err := it.popInt()
	if err != nil {
		return err
	}
	rows, err := it.popInt()
	if err != nil {
		return err
	}
	rmat, err := it.popIntMatrix(dim, cols)
	if err != nil {
		return err
	}
	lmat, err := it.popIntMatrix(rows, dim)
	if err != nil {
		return err
	}

	result := make([]int, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sum := 0
			for k := 0; k < dim; k++ {
				sum += lmat[r*dim+k] * rmat[k*cols+c]
			}
			result[r*cols+c] = sum
		}
	}
	return it.pushIntMatrix(result)
}

func (it *Interpreter) matMulFloat() error {
	cols, err := it.popInt()
	if err != nil {
		return err
	}
	dim, err := it.popInt()
	if err != nil {
		return err
	}
	rows, err := it.popInt()
	if err != nil {
		return err
	}
	rmat, err := it.popFloatMatrix(dim, cols)
	if err != nil {
		return err
	}
	lmat, err := it.popFloatMatrix(rows, dim)
	if err != nil {
		return err
	}

	result := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			var sum float32
			for k := 0; k < dim; k++ {
				sum += lmat[r*dim+k] * rmat[k*cols+c]
			}
			result[r*cols+c] = sum
		}
	}
	return it.pushFloatMatrix(result)
}

// matTranspose pops cols, rows then the matrix (rows x cols) — push order
// was mat, rows, cols. Implemented over raw Values (not decoded to int or
// float) since transposition only rearranges words and works the same for
// either element type.
func (it *Interpreter) matTranspose() error {
	cols, err := it.popInt()
	if err != nil {
		return err
	}
	rows, err := it.popInt()
	if err != nil {
		return err
	}
	n := rows * cols
	st := it.State.GetRegI(tam.ST)
	base := st - n
	mat := make([]tam.Value, n)
	for i := range mat {
		v, err := it.State.GetMem(base + i)
		if err != nil {
			return err
		}
		mat[i] = v
	}
	if _, err := it.State.DecStack(n); err != nil {
		return err
	}

	result := make([]tam.Value, n)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			result[c*rows+r] = mat[r*cols+c]
		}
	}
	newBase, err := it.State.IncStack(n)
	if err != nil {
		return err
	}
	for i, v := range result {
		if err := it.State.SetMem(newBase+i, v); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interpreter) pushIntMatrix(data []int) error {
	base, err := it.State.IncStack(len(data))
	if err != nil {
		return err
	}
	for i, v := range data {
		if err := it.State.SetMem(base+i, tam.IntValue(v)); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interpreter) pushFloatMatrix(data []float32) error {
	base, err := it.State.IncStack(len(data))
	if err != nil {
		return err
	}
	for i, v := range data {
		if err := it.State.SetMem(base+i, tam.FloatValueFromFloat32(v)); err != nil {
			return err
		}
	}
	return nil
}
