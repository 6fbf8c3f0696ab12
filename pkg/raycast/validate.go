package raycast

import (
	"fmt"

	"github.com/df07/go-raycasting-scene/pkg/tensor"
)

func checkTensor(name string, t *tensor.Tensor, dtype tensor.DType) error {
	if t == nil {
		return fmt.Errorf("%w: %s Tensor is nil", ErrInvalidArgument, name)
	}
	if t.Device() != tensor.CPU {
		return fmt.Errorf("%w: %s Tensor is on device %s but expected %s", ErrInvalidArgument, name, t.Device(), tensor.CPU)
	}
	if t.DType() != dtype {
		return fmt.Errorf("%w: %s Tensor has dtype %s but expected %s", ErrInvalidArgument, name, t.DType(), dtype)
	}
	return nil
}

// checkRecords validates a batch of fixed-width float32 records with any leading shape
func checkRecords(name string, t *tensor.Tensor, width int) error {
	if err := checkTensor(name, t, tensor.Float32); err != nil {
		return err
	}
	if t.NDim() < 2 {
		return fmt.Errorf("%w: %s Tensor ndim is %d but expected ndim >= 2", ErrInvalidArgument, name, t.NDim())
	}
	if shape := t.Shape(); shape[len(shape)-1] != width {
		return fmt.Errorf("%w: The last dimension of the %s Tensor must be %d but got Tensor with shape %s",
			ErrInvalidArgument, name, width, shape)
	}
	return nil
}

// checkMatrix validates a {N, width} tensor
func checkMatrix(name string, t *tensor.Tensor, dtype tensor.DType, width int) error {
	if err := checkTensor(name, t, dtype); err != nil {
		return err
	}
	if shape := t.Shape(); len(shape) != 2 || shape[1] != width {
		return fmt.Errorf("%w: %s Tensor has shape %s but expected shape {N, %d}", ErrInvalidArgument, name, shape, width)
	}
	return nil
}
