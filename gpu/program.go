package gpu

import "fmt"

// QuadVertices are two triangles covering clip space, three components each.
var QuadVertices = []float32{
	-1.0, -1.0, 0.0,
	-1.0, 1.0, 0.0,
	1.0, 1.0, 0.0,
	1.0, 1.0, 0.0,
	1.0, -1.0, 0.0,
	-1.0, -1.0, 0.0,
}

// QuadVertexCount is the number of vertices drawn per full-screen pass.
const QuadVertexCount = 6

// Quad is the full-screen geometry shared by every pass.
type Quad struct {
	VAO VertexArray
	vbo Buffer
}

func NewQuad(dev Device) (*Quad, error) {
	vao, vbo, err := dev.CreateVertexArray(QuadVertices, 3)
	if err != nil {
		return nil, &ResourceCreationError{Resource: "quad geometry", Err: err}
	}
	return &Quad{VAO: vao, vbo: vbo}, nil
}

func (q *Quad) Destroy(dev Device) {
	if q == nil || q.VAO == 0 {
		return
	}
	dev.DeleteVertexArray(q.VAO, q.vbo)
	q.VAO, q.vbo = 0, 0
}

// NewProgram compiles and links a vertex and fragment stage. The stage
// objects are released whether or not linking succeeds.
func NewProgram(dev Device, vertexSource, fragmentSource string) (Program, error) {
	vs, err := compileShader(dev, VertexStage, vertexSource)
	if err != nil {
		return 0, err
	}
	defer dev.DeleteShader(vs)

	fs, err := compileShader(dev, FragmentStage, fragmentSource)
	if err != nil {
		return 0, err
	}
	defer dev.DeleteShader(fs)

	program, err := dev.CreateProgram()
	if err != nil {
		return 0, &ResourceCreationError{Resource: "program", Err: err}
	}
	dev.AttachShader(program, vs)
	dev.AttachShader(program, fs)
	ok, log := dev.LinkProgram(program)
	dev.DetachShader(program, vs)
	dev.DetachShader(program, fs)
	if !ok {
		dev.DeleteProgram(program)
		return 0, &ShaderLinkError{Log: log}
	}
	return program, nil
}

func compileShader(dev Device, stage Stage, source string) (Shader, error) {
	sh, err := dev.CreateShader(stage, source)
	if err != nil {
		return 0, &ResourceCreationError{Resource: fmt.Sprintf("%s shader", stage), Err: err}
	}
	if ok, log := dev.CompileShader(sh); !ok {
		dev.DeleteShader(sh)
		return 0, &ShaderCompileError{Stage: stage, Log: log}
	}
	return sh, nil
}
