package pretrained

import (
	"github.com/koaning/wallholla/nn"
)

func init() {
	registry["vgg16"] = architecture{
		build:       func() *nn.Sequential { return buildVGG([]int{2, 2, 3, 3, 3}) },
		reduce:      reduceFloorHalving(5),
		outChannels: 512,
	}
	registry["vgg19"] = architecture{
		build:       func() *nn.Sequential { return buildVGG([]int{2, 2, 4, 4, 4}) },
		reduce:      reduceFloorHalving(5),
		outChannels: 512,
	}
	registry["mobilenet"] = architecture{
		build:       buildMobileNet,
		reduce:      reduceCeilHalving(5),
		outChannels: 1024,
	}
	registry["xception"] = architecture{
		build:       buildXception,
		reduce:      reduceCeilHalving(5),
		outChannels: 2048,
	}
}

// reduceFloorHalving models n valid-padding 2x2/2 max pools.
func reduceFloorHalving(n int) func(h, w int) (int, int) {
	return func(h, w int) (int, int) {
		for i := 0; i < n; i++ {
			h /= 2
			w /= 2
		}
		return h, w
	}
}

// reduceCeilHalving models n same-padding stride-2 layers.
func reduceCeilHalving(n int) func(h, w int) (int, int) {
	return func(h, w int) (int, int) {
		for i := 0; i < n; i++ {
			h = (h + 1) / 2
			w = (w + 1) / 2
		}
		return h, w
	}
}

// buildVGG stacks 3x3 relu convolutions in five blocks of the given
// sizes, each ending in a 2x2 max pool. Block channels are
// 64-128-256-512-512.
func buildVGG(convsPerBlock []int) *nn.Sequential {
	channels := []int{64, 128, 256, 512, 512}

	net := nn.NewSequential()
	in := 3
	for block, convs := range convsPerBlock {
		out := channels[block]
		for i := 0; i < convs; i++ {
			net.Append(nn.NewConv2D(in, out, 3, 1, nn.PaddingSame, nn.NewReLU()))
			in = out
		}
		net.Append(nn.NewMaxPool2D(2, 2, nn.PaddingValid))
	}
	return net
}

// convBN appends conv + batch norm + relu6, the MobileNet unit.
func convBN(net *nn.Sequential, in, out, kernel, stride int) {
	net.Append(nn.NewConv2D(in, out, kernel, stride, nn.PaddingSame, nil))
	net.Append(nn.NewBatchNorm(out, 1e-3))
	net.Append(nn.NewReLU6())
}

// depthwiseBN appends depthwise conv + batch norm + relu6.
func depthwiseBN(net *nn.Sequential, channels, stride int) {
	net.Append(nn.NewDepthwiseConv2D(channels, 3, stride, nn.PaddingSame, nil))
	net.Append(nn.NewBatchNorm(channels, 1e-3))
	net.Append(nn.NewReLU6())
}

// buildMobileNet builds the MobileNet v1 feature extractor: a strided
// entry convolution followed by thirteen depthwise-separable blocks.
func buildMobileNet() *nn.Sequential {
	// (output channels, depthwise stride) per block.
	blocks := []struct {
		channels int
		stride   int
	}{
		{64, 1},
		{128, 2}, {128, 1},
		{256, 2}, {256, 1},
		{512, 2}, {512, 1}, {512, 1}, {512, 1}, {512, 1}, {512, 1},
		{1024, 2}, {1024, 1},
	}

	net := nn.NewSequential()
	convBN(net, 3, 32, 3, 2)
	in := 32
	for _, b := range blocks {
		depthwiseBN(net, in, b.stride)
		convBN(net, in, b.channels, 1, 1)
		in = b.channels
	}
	return net
}

// sepBN builds separable conv + batch norm.
func sepBN(in, out int) *nn.Sequential {
	return nn.NewSequential(
		nn.NewSeparableConv2D(in, out, 3, 1, nn.PaddingSame, nil),
		nn.NewBatchNorm(out, 1e-3),
	)
}

// xceptionDownBlock builds one entry/exit-flow residual block: two
// separable convolutions followed by a strided max pool, with a strided
// 1x1 projection shortcut.
func xceptionDownBlock(in, mid, out int, firstReLU bool) *nn.Residual {
	main := nn.NewSequential()
	if firstReLU {
		main.Append(nn.NewReLU())
	}
	main.Append(nn.NewSeparableConv2D(in, mid, 3, 1, nn.PaddingSame, nil))
	main.Append(nn.NewBatchNorm(mid, 1e-3))
	main.Append(nn.NewReLU())
	main.Append(nn.NewSeparableConv2D(mid, out, 3, 1, nn.PaddingSame, nil))
	main.Append(nn.NewBatchNorm(out, 1e-3))
	main.Append(nn.NewMaxPool2D(3, 2, nn.PaddingSame))

	shortcut := nn.NewSequential(
		nn.NewConv2D(in, out, 1, 2, nn.PaddingSame, nil),
		nn.NewBatchNorm(out, 1e-3),
	)
	return nn.NewResidual(main, shortcut)
}

// xceptionMiddleBlock builds one identity-skip middle-flow block of
// three separable convolutions at constant width.
func xceptionMiddleBlock(channels int) *nn.Residual {
	main := nn.NewSequential()
	for i := 0; i < 3; i++ {
		main.Append(nn.NewReLU())
		main.Append(nn.NewSeparableConv2D(channels, channels, 3, 1, nn.PaddingSame, nil))
		main.Append(nn.NewBatchNorm(channels, 1e-3))
	}
	return nn.NewResidual(main, nil)
}

// buildXception builds the Xception feature extractor: entry flow with
// three downsampling residual blocks, eight middle-flow blocks, and the
// exit flow.
func buildXception() *nn.Sequential {
	net := nn.NewSequential()

	// Entry flow stem.
	convBNReLU := func(in, out, stride int) {
		net.Append(nn.NewConv2D(in, out, 3, stride, nn.PaddingSame, nil))
		net.Append(nn.NewBatchNorm(out, 1e-3))
		net.Append(nn.NewReLU())
	}
	convBNReLU(3, 32, 2)
	convBNReLU(32, 64, 1)

	// Entry flow downsampling blocks.
	net.Append(xceptionDownBlock(64, 128, 128, false))
	net.Append(xceptionDownBlock(128, 256, 256, true))
	net.Append(xceptionDownBlock(256, 728, 728, true))

	// Middle flow.
	for i := 0; i < 8; i++ {
		net.Append(xceptionMiddleBlock(728))
	}

	// Exit flow.
	net.Append(xceptionDownBlock(728, 728, 1024, true))
	net.Append(sepBN(1024, 1536))
	net.Append(nn.NewReLU())
	net.Append(sepBN(1536, 2048))
	net.Append(nn.NewReLU())
	return net
}
