package model

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// GANConfig sizes the fully connected GAN.
type GANConfig struct {
	NoiseDim int     // generator input size
	Output   int     // sample size, e.g. 784 for 28x28 images
	Hidden   int     // widest hidden layer
	Alpha    float64 // LeakyReLU slope
	Dropout  float64 // discriminator dropout rate
	Seed     uint64
}

// DefaultGANConfig returns the MNIST-sized defaults.
func DefaultGANConfig() GANConfig {
	return GANConfig{
		NoiseDim: 100,
		Output:   784,
		Hidden:   128,
		Alpha:    0.01,
		Dropout:  0.3,
	}
}

// NewGAN builds a GAN with dense discriminator and generator.
func NewGAN(cfg GANConfig, opts ...Option) (*AdversarialModel, error) {
	if cfg.NoiseDim <= 0 || cfg.Output <= 0 || cfg.Hidden < 2 {
		return nil, errors.Errorf("gan: invalid sizes noise=%d output=%d hidden=%d", cfg.NoiseDim, cfg.Output, cfg.Hidden)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, 1))
	half := cfg.Hidden / 2

	d := NewSequential("D_gan",
		NewDense(cfg.Output, cfg.Hidden, true, rng),
		NewLeakyReLU(cfg.Alpha),
		NewDropout(cfg.Dropout, rng),
		NewDense(cfg.Hidden, half, true, rng),
		NewLeakyReLU(cfg.Alpha),
		NewDense(half, 1, true, rng),
	)
	g := NewSequential("G_gan",
		NewDense(cfg.NoiseDim, half, true, rng),
		NewLeakyReLU(cfg.Alpha),
		NewDense(half, cfg.Hidden, true, rng),
		NewLeakyReLU(cfg.Alpha),
		NewDense(cfg.Hidden, cfg.Output, true, rng),
		NewTanh(),
	)
	return NewAdversarialModel("gan", d, g, cfg.NoiseDim, append([]Option{WithSeed(cfg.Seed)}, opts...)...)
}

// DCGANConfig sizes the deep convolutional GAN. Output must be a square
// image whose side is divisible by 4.
type DCGANConfig struct {
	NoiseDim int
	Output   int
	Alpha    float64
	Dropout  float64
	Kernel   int
	DFilters [2]int
	GFilters [3]int
	Seed     uint64
}

// DefaultDCGANConfig returns the MNIST-sized defaults.
func DefaultDCGANConfig() DCGANConfig {
	return DCGANConfig{
		NoiseDim: 100,
		Output:   784,
		Alpha:    0.3,
		Dropout:  0.3,
		Kernel:   5,
		DFilters: [2]int{64, 128},
		GFilters: [3]int{256, 128, 64},
	}
}

// NewDCGAN builds the convolutional discriminator and generator.
//
// The generator projects noise to an s x s x GFilters[0] map, s = side/4,
// then upsamples with stride 1, 2 and 2 transposed convolutions to a
// side x side x 1 image in [-1, 1]. Every BatchNorm, including the one
// right after the projection, normalises per channel of its feature map
// rather than per flattened feature.
func NewDCGAN(cfg DCGANConfig, opts ...Option) (*AdversarialModel, error) {
	side := int(math.Sqrt(float64(cfg.Output)))
	if side*side != cfg.Output || side%4 != 0 {
		return nil, errors.Errorf("dcgan: output %d is not a square image with side divisible by 4", cfg.Output)
	}
	if cfg.NoiseDim <= 0 || cfg.Kernel <= 0 {
		return nil, errors.Errorf("dcgan: invalid noise=%d kernel=%d", cfg.NoiseDim, cfg.Kernel)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, 2))
	k := cfg.Kernel

	conv1 := NewConv2D(Shape{side, side, 1}, cfg.DFilters[0], k, 2, rng)
	conv2 := NewConv2D(conv1.Out(), cfg.DFilters[1], k, 2, rng)
	d := NewSequential("D_dcgan",
		conv1,
		NewLeakyReLU(cfg.Alpha),
		NewDropout(cfg.Dropout, rng),
		conv2,
		NewLeakyReLU(cfg.Alpha),
		NewDropout(cfg.Dropout, rng),
		NewDense(conv2.Out().Size(), 1, true, rng),
	)

	s := side / 4
	seed := Shape{s, s, cfg.GFilters[0]}
	up1 := NewConv2DTranspose(seed, cfg.GFilters[1], k, 1, false, rng)
	up2 := NewConv2DTranspose(up1.Out(), cfg.GFilters[2], k, 2, false, rng)
	up3 := NewConv2DTranspose(up2.Out(), 1, k, 2, false, rng)
	g := NewSequential("G_dcgan",
		NewDense(cfg.NoiseDim, seed.Size(), false, rng),
		NewBatchNorm(seed.C),
		NewLeakyReLU(cfg.Alpha),
		up1,
		NewBatchNorm(up1.Out().C),
		NewLeakyReLU(cfg.Alpha),
		up2,
		NewBatchNorm(up2.Out().C),
		NewLeakyReLU(cfg.Alpha),
		up3,
		NewTanh(),
	)
	return NewAdversarialModel("dcgan", d, g, cfg.NoiseDim, append([]Option{WithSeed(cfg.Seed)}, opts...)...)
}
