package sunat

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

// CompressXMLToZip empaqueta el XML firmado en un archivo ZIP en memoria.
// SUNAT exige que el ZIP contenga un único archivo con el nombre
// {RUC}-{tipoDoc}-{serie}-{correlativo}.xml. Devuelve los bytes del ZIP
// listos para Base64 y envío al WS; estos bytes se guardan tal cual en el
// documento (zip_sent) para auditoría de qué se transmitió exactamente.
func CompressXMLToZip(xmlBytes []byte, xmlFilename string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	fw, err := zw.Create(xmlFilename)
	if err != nil {
		return nil, fmt.Errorf("zip: crear entrada %s: %w", xmlFilename, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: escribir XML: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: cerrar archivo: %w", err)
	}
	return buf.Bytes(), nil
}

// ExtractFirstFile devuelve el contenido del primer archivo dentro de un ZIP
// (usado para leer el ApplicationResponse dentro del CDR).
func ExtractFirstFile(zipBytes []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, fmt.Errorf("zip: abrir CDR: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("zip: abrir %s: %w", f.Name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, 4<<20)) // max 4 MB
		if err != nil {
			return nil, fmt.Errorf("zip: leer %s: %w", f.Name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("zip: el archivo no contiene entradas")
}
