package artnet

// Conf is the output section the driver needs.
type Conf struct {
	CIDR     string // CIDR - сеть, в которой ищется локальный адрес.
	Universe uint16 // Universe: старший байт - Net, младший байт - SubUni.
	MaxFPS   int    // MaxFPS - ограничение частоты отправки контроллером.
}

// Universe wraps the 512 byte array for convenience.
type Universe [512]byte

// UniverseFrame is one universe of a frame together with its address.
type UniverseFrame struct {
	Universe uint16
	Data     Universe
}

// NodeTopic summarizes the output ports of a discovered node.
type NodeTopic struct {
	Name      string
	OutputStr []string
	Output    []uint16
}

type IpsType struct {
	Ips    []string
	Topics []NodeTopic
}
