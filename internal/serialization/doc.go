// Package serialization saves and loads named weight tensors, with the
// training state they were saved at, in the .bpw checkpoint format:
//
//	Format structure:
//	  [0x00-0x03: Magic "BPGW"]
//	  [0x04-0x07: Version (uint32 LE)]
//	  [0x08-0x0B: Flags (uint32 LE)]
//	  [0x0C-0x0F: Reserved]
//	  [0x10-0x17: Header size (uint64 LE)]
//	  [0x18-0x1F: Data size (uint64 LE)]
//	  [0x20-0x3F: SHA-256 of the data section]
//	  [Header: JSON metadata]
//	  [Padding to a 64-byte boundary]
//	  [Tensor data: float64 LE values in each tensor's algebra]
//
// Example usage:
//
//	err := serialization.Save("theta.bpw", map[string]*tensor.Tensor{"theta": theta}, serialization.Header{
//	    Checkpoint: &serialization.CheckpointMeta{Epoch: 10, Loss: 0.25, OptimizerType: "Adam"},
//	})
//
//	weights, header, err := serialization.Load("theta.bpw")
package serialization
