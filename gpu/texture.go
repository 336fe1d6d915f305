package gpu

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/richinsley/goblackhole/logger"
	"github.com/richinsley/goblackhole/noise"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"go.uber.org/zap"
)

// CubeFaces lists the face image names in upload order.
var CubeFaces = [6]struct {
	File   string
	Target ImageTarget
}{
	{"right.png", CubePositiveX},
	{"left.png", CubeNegativeX},
	{"top.png", CubePositiveY},
	{"bottom.png", CubeNegativeY},
	{"front.png", CubePositiveZ},
	{"back.png", CubeNegativeZ},
}

// CreateColorTarget allocates an RGB16F texture with linear filtering and
// edge clamping and no mipmaps.
func CreateColorTarget(dev Device, width, height int) (Texture, error) {
	return createTargetTexture(dev, width, height, RGB16F)
}

func createTargetTexture(dev Device, width, height int, format PixelFormat) (Texture, error) {
	if width <= 0 || height <= 0 {
		return 0, &ResourceCreationError{Resource: "color target", Err: fmt.Errorf("invalid size %dx%d", width, height)}
	}
	tex, err := dev.CreateTexture()
	if err != nil {
		return 0, &ResourceCreationError{Resource: "color target", Err: err}
	}
	dev.BindTexture(Texture2D, tex)
	if err := dev.TexImage2D(Image2D, width, height, format, nil); err != nil {
		dev.BindTexture(Texture2D, 0)
		dev.DeleteTexture(tex)
		return 0, &ResourceCreationError{Resource: fmt.Sprintf("%dx%d %s color target", width, height, format), Err: err}
	}
	dev.TexParameters(Texture2D, Linear, ClampToEdge)
	dev.BindTexture(Texture2D, 0)
	return tex, nil
}

// CreateFramebuffer binds tex as the only color attachment of a new
// framebuffer and verifies completeness.
func CreateFramebuffer(dev Device, tex Texture) (Framebuffer, error) {
	fb, err := dev.CreateFramebuffer()
	if err != nil {
		return 0, &ResourceCreationError{Resource: "framebuffer", Err: err}
	}
	dev.BindFramebuffer(fb)
	dev.AttachColor(tex)
	complete, status := dev.FramebufferStatus()
	dev.BindFramebuffer(DefaultFramebuffer)
	if !complete {
		dev.DeleteFramebuffer(fb)
		return 0, &FramebufferError{Status: status}
	}
	return fb, nil
}

// LoadTexture2D decodes an image file into an RGBA8 texture.
func LoadTexture2D(dev Device, path string) (Texture, error) {
	rgba, err := decodeImage(path)
	if err != nil {
		return 0, err
	}
	size := rgba.Rect.Size()

	tex, err := dev.CreateTexture()
	if err != nil {
		return 0, &ResourceCreationError{Resource: "texture " + path, Err: err}
	}
	dev.BindTexture(Texture2D, tex)
	if err := dev.TexImage2D(Image2D, size.X, size.Y, RGBA8, rgba.Pix); err != nil {
		dev.BindTexture(Texture2D, 0)
		dev.DeleteTexture(tex)
		return 0, &ResourceCreationError{Resource: "texture " + path, Err: err}
	}
	dev.TexParameters(Texture2D, Linear, ClampToEdge)
	dev.BindTexture(Texture2D, 0)

	logger.Log.Debug("loaded texture", zap.String("path", path), zap.Int("width", size.X), zap.Int("height", size.Y))
	return tex, nil
}

// LoadCubemap decodes the six faces in dir into an RGBA8 cubemap. Faces are
// uploaded with four channels whatever the source layout.
func LoadCubemap(dev Device, dir string) (Texture, error) {
	var faces [6]*image.RGBA
	for i, face := range CubeFaces {
		path := filepath.Join(dir, face.File)
		rgba, err := decodeImage(path)
		if err != nil {
			return 0, err
		}
		if i > 0 && rgba.Rect.Size() != faces[0].Rect.Size() {
			return 0, &AssetDecodeError{
				Path: path,
				Err:  fmt.Errorf("face is %v, expected %v", rgba.Rect.Size(), faces[0].Rect.Size()),
			}
		}
		faces[i] = rgba
	}

	tex, err := dev.CreateTexture()
	if err != nil {
		return 0, &ResourceCreationError{Resource: "cubemap " + dir, Err: err}
	}
	dev.BindTexture(TextureCube, tex)
	for i, face := range CubeFaces {
		size := faces[i].Rect.Size()
		if err := dev.TexImage2D(face.Target, size.X, size.Y, RGBA8, faces[i].Pix); err != nil {
			dev.BindTexture(TextureCube, 0)
			dev.DeleteTexture(tex)
			return 0, &ResourceCreationError{Resource: "cubemap face " + face.File, Err: err}
		}
	}
	dev.TexParameters(TextureCube, Linear, ClampToEdge)
	dev.BindTexture(TextureCube, 0)

	logger.Log.Debug("loaded cubemap", zap.String("dir", dir), zap.Int("size", faces[0].Rect.Dx()))
	return tex, nil
}

// CreateNoiseTexture3D uploads the precomputed noise volume as a
// single-channel repeat-wrapped 3D texture.
func CreateNoiseTexture3D(dev Device) (Texture, error) {
	data := noise.Generate3D()

	tex, err := dev.CreateTexture()
	if err != nil {
		return 0, &ResourceCreationError{Resource: "noise volume", Err: err}
	}
	dev.BindTexture(Texture3D, tex)
	// rows of R8 data are not 4-byte aligned in general
	dev.UnpackAlignment(1)
	err = dev.TexImage3D(noise.Size, noise.Size, noise.Size, R8, data)
	dev.UnpackAlignment(4)
	if err != nil {
		dev.BindTexture(Texture3D, 0)
		dev.DeleteTexture(tex)
		return 0, &ResourceCreationError{Resource: "noise volume", Err: err}
	}
	dev.TexParameters(Texture3D, Linear, Repeat)
	dev.BindTexture(Texture3D, 0)
	return tex, nil
}

func decodeImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &AssetNotFoundError{Path: path}
		}
		return nil, &AssetDecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &AssetDecodeError{Path: path, Err: err}
	}
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba, nil
}
