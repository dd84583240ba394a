/*
Package contracts provides access to compiled AlarmStorage contract artefacts.
*/
package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/nspcc-dev/neo-go/cli/smartcontract"
	"github.com/nspcc-dev/neo-go/pkg/compiler"
	"github.com/nspcc-dev/neo-go/pkg/io"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/nef"
)

const (
	// AlarmStorageDir is a path to the AlarmStorage contract sources relative
	// to the repository root.
	AlarmStorageDir = "contracts/alarmstorage"

	nefName      = "contract.nef"
	manifestName = "manifest.json"
	configName   = "config.yml"
)

// Contract groups information about Neo contract.
type Contract struct {
	NEF      nef.File
	Manifest manifest.Manifest
}

var (
	// ErrInvalidNEF is returned when NEF file can't be decoded.
	ErrInvalidNEF = errors.New("invalid NEF")
	// ErrInvalidManifest is returned when manifest file can't be decoded.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// Read reads contract.nef and manifest.json files from the dir of the given
// file system. Use os.DirFS to read artefacts from disk.
func Read(fsys fs.FS, dir string) (Contract, error) {
	var c Contract

	// fs.FS always uses "/", so filepath.Join() is not applicable.
	fNEF, err := fsys.Open(path.Join(dir, nefName))
	if err != nil {
		return c, fmt.Errorf("open NEF: %w", err)
	}
	defer fNEF.Close()

	fManifest, err := fsys.Open(path.Join(dir, manifestName))
	if err != nil {
		return c, fmt.Errorf("open manifest: %w", err)
	}
	defer fManifest.Close()

	bReader := io.NewBinReaderFromIO(fNEF)
	c.NEF.DecodeBinary(bReader)
	if bReader.Err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalidNEF, bReader.Err)
	}

	err = json.NewDecoder(fManifest).Decode(&c.Manifest)
	if err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	return c, nil
}

// Compile compiles contract sources located in dir along with its config.yml.
func Compile(dir string) (Contract, error) {
	ne, di, err := compiler.CompileWithOptions(dir, nil, nil)
	if err != nil {
		return Contract{}, fmt.Errorf("compile: %w", err)
	}

	conf, err := smartcontract.ParseContractConfig(path.Join(dir, configName))
	if err != nil {
		return Contract{}, fmt.Errorf("read config: %w", err)
	}

	o := &compiler.Options{}
	o.Name = conf.Name
	o.ContractEvents = conf.Events
	o.ContractSupportedStandards = conf.SupportedStandards
	o.Permissions = make([]manifest.Permission, len(conf.Permissions))
	for i := range conf.Permissions {
		o.Permissions[i] = manifest.Permission(conf.Permissions[i])
	}
	o.SafeMethods = conf.SafeMethods

	m, err := compiler.CreateManifest(di, o)
	if err != nil {
		return Contract{}, fmt.Errorf("make manifest: %w", err)
	}

	return Contract{NEF: *ne, Manifest: *m}, nil
}

// Write stores contract in the form readable by Read.
func Write(c Contract, write func(name string, data []byte) error) error {
	bNEF, err := c.NEF.Bytes()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNEF, err)
	}

	jManifest, err := json.Marshal(c.Manifest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	if err := write(nefName, bNEF); err != nil {
		return fmt.Errorf("write NEF: %w", err)
	}

	if err := write(manifestName, jManifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	return nil
}
